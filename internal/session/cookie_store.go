package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

// CookieStore keeps session values in a signed (and, with a block key,
// encrypted) cookie. No server-side state is kept.
type CookieStore struct {
	codec  *securecookie.SecureCookie
	cookie CookieOptions
}

// NewCookieStore creates a cookie-backed store. hashKey authenticates the
// cookie; blockKey may be nil to disable encryption.
func NewCookieStore(hashKey, blockKey []byte, cookie CookieOptions) *CookieStore {
	cookie = cookie.withDefaults()
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(cookie.MaxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &CookieStore{codec: codec, cookie: cookie}
}

// Load implements Store. A cookie that fails verification is treated as
// absent.
func (s *CookieStore) Load(w http.ResponseWriter, r *http.Request) (Session, error) {
	sess := &cookieSession{store: s, w: w, values: newValues(nil)}

	cookie, err := r.Cookie(s.cookie.Name)
	if err != nil || cookie.Value == "" {
		return sess, nil
	}

	data := map[string]string{}
	if err := s.codec.Decode(s.cookie.Name, cookie.Value, &data); err != nil {
		return sess, nil
	}
	sess.values = newValues(data)
	return sess, nil
}

type cookieSession struct {
	values
	store *CookieStore
	w     http.ResponseWriter
}

func (s *cookieSession) Save(context.Context) error {
	if !s.dirty {
		return nil
	}
	if len(s.data) == 0 {
		deleteCookie(s.w, s.store.cookie)
		s.dirty, s.renew = false, false
		return nil
	}

	encoded, err := s.store.codec.Encode(s.store.cookie.Name, s.snapshot())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	setSecureCookie(s.w, s.store.cookie, encoded)
	s.dirty, s.renew = false, false
	return nil
}
