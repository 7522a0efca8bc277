package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
)

// signInitData produces a valid WebApp init data string for tests, signing the
// given fields the way Telegram does.
func signInitData(botToken string, fields map[string]string) string {
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	hash := hex.EncodeToString(mac.Sum(nil))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hash)
	return values.Encode()
}

const testBotToken = "12345:TEST_TOKEN"

func testUserJSON(id int64) string {
	return fmt.Sprintf(`{"id":%d,"first_name":"Ada","last_name":"Lovelace","language_code":"en","is_premium":true}`, id)
}

func TestVerifyInitData_Valid(t *testing.T) {
	initData := signInitData(testBotToken, map[string]string{
		"user":      testUserJSON(42),
		"auth_date": "1700000000",
	})

	u, ok := VerifyInitData(initData, testBotToken)
	if !ok {
		t.Fatalf("valid init data rejected")
	}
	if u.ID != 42 || u.FirstName != "Ada" || !u.IsPremium {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Lang() != "en" {
		t.Fatalf("unexpected lang: %q", u.Lang())
	}
}

func TestVerifyInitData_TamperedPayload(t *testing.T) {
	initData := signInitData(testBotToken, map[string]string{
		"user":      testUserJSON(42),
		"auth_date": "1700000000",
	})
	tampered := strings.Replace(initData, "42", "43", 1)

	if _, ok := VerifyInitData(tampered, testBotToken); ok {
		t.Fatalf("tampered init data accepted")
	}
}

func TestVerifyInitData_WrongToken(t *testing.T) {
	initData := signInitData("other:TOKEN", map[string]string{
		"user":      testUserJSON(42),
		"auth_date": "1700000000",
	})
	if _, ok := VerifyInitData(initData, testBotToken); ok {
		t.Fatalf("init data signed with another bot token accepted")
	}
}

func TestVerifyInitData_MissingPieces(t *testing.T) {
	// No hash at all.
	if _, ok := VerifyInitData("user=%7B%22id%22%3A1%7D", testBotToken); ok {
		t.Fatalf("hashless init data accepted")
	}
	// Signed but without a user field.
	initData := signInitData(testBotToken, map[string]string{"auth_date": "1700000000"})
	if _, ok := VerifyInitData(initData, testBotToken); ok {
		t.Fatalf("userless init data accepted")
	}
	// Not even a query string.
	if _, ok := VerifyInitData("%zz", testBotToken); ok {
		t.Fatalf("unparseable init data accepted")
	}
}

func TestWebAppUser_LangFallback(t *testing.T) {
	u := &WebAppUser{}
	if u.Lang() != "en" {
		t.Fatalf("expected en fallback, got %q", u.Lang())
	}
}
