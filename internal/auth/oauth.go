// Package auth branche la connexion sociale (goth) sur les comptes locaux.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	"github.com/markbates/goth/providers/vk"
	"github.com/markbates/goth/providers/yandex"

	"mehashop_back_end/internal/config"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
)

type providerCtxKey struct{}

// WithProvider attache le nom du provider à la requête pour gothic.
func WithProvider(r *http.Request, name string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), providerCtxKey{}, name))
}

// Setup configure le store de session gothic et enregistre les providers renseignés.
// Renvoie les noms activés, triés.
func Setup(oauth config.OAuthConfig, authCfg config.AuthConfig) []string {
	secret := authCfg.SessionSecret
	if secret == "" {
		secret = authCfg.JWTSecret
		log.Println("⚠️ SESSION_SECRET absent, secret JWT réutilisé pour les sessions OAuth")
	}

	cookies := sessions.NewCookieStore([]byte(secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   authCfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = cookies

	gothic.GetProviderName = func(req *http.Request) (string, error) {
		if name, ok := req.Context().Value(providerCtxKey{}).(string); ok && name != "" {
			return name, nil
		}
		if name := req.URL.Query().Get("provider"); name != "" {
			return name, nil
		}
		return "", errors.New("provider not found")
	}

	var (
		providers []goth.Provider
		names     []string
	)
	for name, p := range oauth.Providers {
		if !p.Enabled() {
			continue
		}
		switch name {
		case "google":
			providers = append(providers, google.New(p.ClientID, p.ClientSecret, p.CallbackURL, "email", "profile"))
		case "facebook":
			providers = append(providers, facebook.New(p.ClientID, p.ClientSecret, p.CallbackURL, "email"))
		case "vk":
			providers = append(providers, vk.New(p.ClientID, p.ClientSecret, p.CallbackURL, "email"))
		case "yandex":
			providers = append(providers, yandex.New(p.ClientID, p.ClientSecret, p.CallbackURL))
		default:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(providers) == 0 {
		log.Println("⚠️ Aucun provider OAuth configuré")
		return nil
	}
	goth.UseProviders(providers...)
	log.Printf("✅ %d OAuth provider(s) initialisé(s): %s", len(names), strings.Join(names, ", "))
	return names
}

// FindOrCreate retrouve le compte lié au provider, sinon rattache un compte existant
// portant le même e-mail, sinon crée un nouveau compte.
func FindOrCreate(ctx context.Context, users store.Users, gu goth.User) (models.User, error) {
	if gu.UserID == "" {
		return models.User{}, errors.New("provider returned no user id")
	}

	u, err := users.UserByProvider(ctx, gu.Provider, gu.UserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}

	if gu.Email != "" {
		u, err = users.UserByEmail(ctx, gu.Email)
		switch {
		case err == nil:
			if err := users.LinkProvider(ctx, u.ID, gu.Provider, gu.UserID); err != nil {
				return models.User{}, fmt.Errorf("link provider: %w", err)
			}
			u.Provider, u.ProviderID = gu.Provider, gu.UserID
			log.Printf("🔗 Compte %d lié à %s", u.ID, gu.Provider)
			return u, nil
		case !errors.Is(err, store.ErrNotFound):
			return models.User{}, err
		}
	}

	base := usernameFor(gu)
	for attempt := 0; attempt < 3; attempt++ {
		u = models.User{
			Username:   base,
			Email:      gu.Email,
			Name:       strings.TrimSpace(gu.Name),
			Provider:   gu.Provider,
			ProviderID: gu.UserID,
		}
		if attempt > 0 {
			u.Username = base + "_" + uuid.NewString()[:6]
		}
		err = users.CreateUser(ctx, &u)
		if err == nil {
			log.Printf("👤 Nouvel utilisateur %d via %s", u.ID, gu.Provider)
			return u, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return models.User{}, err
		}
	}
	return models.User{}, fmt.Errorf("create user: %w", err)
}

func usernameFor(gu goth.User) string {
	switch {
	case gu.NickName != "":
		return strings.ToLower(gu.NickName)
	case gu.Email != "":
		local, _, _ := strings.Cut(gu.Email, "@")
		return strings.ToLower(local)
	default:
		return gu.Provider + "_" + gu.UserID
	}
}

// SafeRedirect renvoie target si son origine figure dans allowed, sinon fallback.
func SafeRedirect(target string, allowed []string, fallback string) string {
	if target == "" {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fallback
	}
	origin := u.Scheme + "://" + u.Host
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return target
		}
	}
	return fallback
}

// AppendToken ajoute token=<jwt> à l'URL de retour du front.
func AppendToken(target, token string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
