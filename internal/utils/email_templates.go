package utils

import (
	"bytes"
	"html/template"

	"mehashop_back_end/internal/models"
)

var orderEmailTmpl = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html lang="ru">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: {{.Color}};">{{.Icon}} {{.Title}}</h2>
		<p>{{.Message}}</p>
		<p>Заказ №{{.OrderID}}{{if .Total}} на сумму <strong>{{.Total}} ₽</strong>{{end}}.</p>
		<p style="margin-top: 30px; color: #555;">Команда MehaShop</p>
	</div>
</body>
</html>`))

type orderEmailData struct {
	Subject, Title, Message, Icon, Color, Total string
	OrderID                                     int64
}

// OrderEmail renvoie le sujet et le corps HTML de l'e-mail associé à un événement de commande.
func OrderEmail(event models.OutboxEvent, total string) (subject, body string, err error) {
	data := orderEmailData{OrderID: event.OrderID, Total: total, Color: "#6b7280", Icon: "📋"}
	switch event.Type {
	case models.EventOrderCreated:
		data.Title, data.Message, data.Icon, data.Color = "Заказ оформлен", "Спасибо! Ваш заказ принят и ожидает оплаты.", "🧾", "#3b82f6"
	case models.EventOrderPaid:
		data.Title, data.Message, data.Icon, data.Color = "Оплата получена", "Оплата подтверждена, мы готовим ваш заказ.", "✅", "#10b981"
	case models.EventOrderCanceled:
		data.Title, data.Message, data.Icon, data.Color = "Заказ отменён", "Платёж был отменён. Если это ошибка, оформите оплату заново.", "❌", "#ef4444"
	case models.EventOrderFailed:
		data.Title, data.Message, data.Icon, data.Color = "Ошибка оплаты", "Не удалось создать платёж. Попробуйте ещё раз.", "⚠️", "#f59e0b"
	default:
		data.Title, data.Message = "Обновление заказа", "Статус вашего заказа изменился."
	}
	data.Subject = data.Title + " - MehaShop"

	var buf bytes.Buffer
	if err := orderEmailTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return data.Subject, buf.String(), nil
}
