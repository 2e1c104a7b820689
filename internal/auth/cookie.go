package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	cookieName     = "gymlog_session"
	cookieTokenKey = "token"
)

// CookieStore wraps a signed cookie that carries nothing but the opaque
// session token. All session state lives server-side in redis.
type CookieStore struct {
	store  *sessions.CookieStore
	secure bool
}

func NewCookieStore(signingSecret []byte, secure bool) *CookieStore {
	store := sessions.NewCookieStore(signingSecret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(DefaultTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieStore{
		store:  store,
		secure: secure,
	}
}

// Token returns the session token from the request cookie, or "" when the
// cookie is absent, expired or fails signature verification.
func (cs *CookieStore) Token(r *http.Request) string {
	session, err := cs.store.Get(r, cookieName)
	if err != nil {
		// a tampered or stale cookie is the same as no cookie
		return ""
	}
	token, ok := session.Values[cookieTokenKey].(string)
	if !ok {
		return ""
	}
	return token
}

func (cs *CookieStore) SetToken(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := cs.store.Get(r, cookieName)
	session.Values[cookieTokenKey] = token
	return session.Save(r, w)
}

func (cs *CookieStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := cs.store.Get(r, cookieName)
	delete(session.Values, cookieTokenKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
