package config

import "os"

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (p OAuthProviderConfig) Enabled() bool { return p.ClientID != "" && p.ClientSecret != "" }

// OAuthConfig contient les providers sociaux supportés (clé = nom goth).
type OAuthConfig struct {
	Providers map[string]OAuthProviderConfig
}

func loadOAuth(baseURL string) OAuthConfig {
	provider := func(name, prefix string) OAuthProviderConfig {
		return OAuthProviderConfig{
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
			CallbackURL:  baseURL + "/api/auth/" + name + "/callback",
		}
	}

	return OAuthConfig{Providers: map[string]OAuthProviderConfig{
		"google":   provider("google", "GOOGLE"),
		"facebook": provider("facebook", "FACEBOOK"),
		"vk":       provider("vk", "VK"),
		"yandex":   provider("yandex", "YANDEX"),
	}}
}
