package utils

import "github.com/skip2/go-qrcode"

// PaymentQRCode encode l'URL de confirmation de paiement en PNG 256x256.
func PaymentQRCode(confirmationURL string) ([]byte, error) {
	return qrcode.Encode(confirmationURL, qrcode.Medium, 256)
}
