// Package handlers – Mini App authentication.
//
// Every API call carries the Telegram WebApp init data string; its hash field
// is an HMAC over the remaining key=value pairs, keyed by a derivation of the
// bot token. Verification here follows the Telegram WebApp contract: the
// secret key is HMAC-SHA256("WebAppData", botToken) and the data-check string
// is the sorted, newline-joined pairs excluding hash.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// WebAppUser is the authenticated caller identity embedded in init data.
type WebAppUser struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	Username        string `json:"username,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	IsPremium       bool   `json:"is_premium,omitempty"`
	PhotoURL        string `json:"photo_url,omitempty"`
	AllowsWriteToPM bool   `json:"allows_write_to_pm,omitempty"`
}

// Lang returns the caller's language hint, defaulting to English.
func (u *WebAppUser) Lang() string {
	if u.LanguageCode == "" {
		return "en"
	}
	return u.LanguageCode
}

// VerifyInitData checks the authenticity of a WebApp init data string and
// returns the embedded user on success.
func VerifyInitData(initData, botToken string) (*WebAppUser, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, false
	}

	var hash, userJSON string
	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		v := ""
		if len(vals) > 0 {
			v = vals[0]
		}
		if key == "hash" {
			hash = v
			continue
		}
		if key == "user" {
			userJSON = v
		}
		pairs = append(pairs, key+"="+v)
	}
	if hash == "" || userJSON == "" {
		return nil, false
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return nil, false
	}

	var u WebAppUser
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return nil, false
	}
	return &u, true
}
