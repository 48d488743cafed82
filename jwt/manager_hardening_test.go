package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestMintParseRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Issuer: "tokenauth"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	a, err := m.Mint(KindAccess, "alice", 2, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b, err := m.Mint(KindAccess, "alice", 2, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a == b {
		t.Fatal("expected unique tokens for identical claims")
	}

	claims, err := m.Parse(a, KindAccess)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "alice" || claims.ClientType != 2 || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongKind(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	refresh, err := m.Mint(KindRefresh, "alice", 0, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(refresh, KindAccess); err == nil {
		t.Fatal("expected refresh token to be rejected as access token")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token, KindAccess); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "tokenauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.Mint(KindAccess, "u", 0, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(access, KindAccess); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(c Claims) string {
		c.Kind = KindAccess
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	wrongIssuer := sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.Parse(wrongIssuer, KindAccess); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "tokenauth",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.Parse(wrongAudience, KindAccess); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	within := sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "tokenauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.Parse(within, KindAccess); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "tokenauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}})
	if _, err := m.Parse(expired, KindAccess); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token, KindAccess); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.Mint(KindAccess, "u", 0, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(good, KindAccess); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}

func TestNewManagerRejectsWeakConfig(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: "none"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: make([]byte, 32), Leeway: time.Hour}); err == nil {
		t.Fatal("expected excessive leeway to be rejected")
	}
}
