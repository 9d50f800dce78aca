package usm_test

import (
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/usm"
)

func TestLocalizedAuthKey_Deterministic(t *testing.T) {
	k1, err := usm.LocalizedAuthKey(gosnmp.MD5, "maplesyrup", "engine-1")
	if err != nil {
		t.Fatalf("LocalizedAuthKey: %v", err)
	}
	k2, err := usm.LocalizedAuthKey(gosnmp.MD5, "maplesyrup", "engine-1")
	if err != nil {
		t.Fatalf("LocalizedAuthKey: %v", err)
	}
	if k1 != k2 {
		t.Error("expected deterministic localization for identical inputs")
	}
	if len(k1) != 16 {
		t.Errorf("MD5 localized key length = %d, want 16", len(k1))
	}
}

func TestLocalizedAuthKey_DifferentEngineDifferentKey(t *testing.T) {
	k1, _ := usm.LocalizedAuthKey(gosnmp.SHA, "maplesyrup", "engine-1")
	k2, _ := usm.LocalizedAuthKey(gosnmp.SHA, "maplesyrup", "engine-2")
	if k1 == k2 {
		t.Error("expected different engineIDs to localize to different keys")
	}
	if len(k1) != 20 {
		t.Errorf("SHA-1 localized key length = %d, want 20", len(k1))
	}
}

func TestAuthenticate_VerifyRoundTrip(t *testing.T) {
	key, _ := usm.LocalizedAuthKey(gosnmp.SHA256, "correct horse battery staple", "engine-1")
	msg := []byte("a BER-encoded SNMPv3 message")

	digest, err := usm.Authenticate(gosnmp.SHA256, []byte(key), msg)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(digest) != 12 {
		t.Errorf("digest length = %d, want 12 (96 bits)", len(digest))
	}

	ok, err := usm.VerifyAuthentication(gosnmp.SHA256, []byte(key), msg, digest)
	if err != nil {
		t.Fatalf("VerifyAuthentication: %v", err)
	}
	if !ok {
		t.Error("expected digest to verify")
	}
}

func TestVerifyAuthentication_RejectsTamperedMessage(t *testing.T) {
	key, _ := usm.LocalizedAuthKey(gosnmp.MD5, "maplesyrup", "engine-1")
	digest, _ := usm.Authenticate(gosnmp.MD5, []byte(key), []byte("original message"))

	ok, err := usm.VerifyAuthentication(gosnmp.MD5, []byte(key), []byte("tampered message"), digest)
	if err != nil {
		t.Fatalf("VerifyAuthentication: %v", err)
	}
	if ok {
		t.Error("expected tampered message to fail verification")
	}
}

func TestPrivacy_DESRoundTrip(t *testing.T) {
	key, _ := usm.LocalizedAuthKey(gosnmp.MD5, "maplesyrup", "engine-1")
	plaintext := []byte("scoped PDU payload needing padding to 8 bytes")

	ct, privParams, err := usm.Encrypt(gosnmp.DES, []byte(key), 1, 100, 0xdeadbeef, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := usm.Decrypt(gosnmp.DES, []byte(key), 1, 100, privParams, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt[:len(plaintext)]) != string(plaintext) {
		t.Errorf("decrypted = %q, want %q", pt[:len(plaintext)], plaintext)
	}
}

func TestPrivacy_AESRoundTrip(t *testing.T) {
	key, _ := usm.LocalizedAuthKey(gosnmp.SHA, "maplesyrup", "engine-1")
	plaintext := []byte("AES-CFB has no block alignment requirement at all")

	ct, privParams, err := usm.Encrypt(gosnmp.AES, []byte(key), 3, 42, 0x1122334455667788, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := usm.Decrypt(gosnmp.AES, []byte(key), 3, 42, privParams, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Errorf("decrypted = %q, want %q", pt, plaintext)
	}
}

func TestEngine_RestartBumpsBootsAndResetsTime(t *testing.T) {
	e := usm.NewEngine("engine-1")
	if e.Boots() != 1 {
		t.Fatalf("initial Boots() = %d, want 1", e.Boots())
	}
	time.Sleep(5 * time.Millisecond)
	before := e.Time()
	e.Restart()
	if e.Boots() != 2 {
		t.Errorf("Boots() after restart = %d, want 2", e.Boots())
	}
	if e.Time() > before {
		t.Error("expected engineTime to reset after restart")
	}
}

func TestEngine_CheckTimeWindow(t *testing.T) {
	e := usm.NewEngine("engine-1")
	if err := e.CheckTimeWindow(e.Boots(), e.Time()); err != nil {
		t.Errorf("expected in-window check to pass: %v", err)
	}
	if err := e.CheckTimeWindow(e.Boots()+1, e.Time()); err == nil {
		t.Error("expected engineBoots mismatch to fail")
	}
	if err := e.CheckTimeWindow(e.Boots(), e.Time()+1000); err == nil {
		t.Error("expected large engineTime drift to fail")
	}
}

func TestUsers_LoadAndGet(t *testing.T) {
	users := usm.NewUsers()
	cfg := models.V3UserConfig{
		Username: "admin",
		Auth:     &models.V3CredentialConfig{Proto: "SHA", Key: "authpassword"},
	}
	err := users.Load([]models.V3UserConfig{cfg}, "engine-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	session, ok := users.Get("admin")
	if !ok {
		t.Fatal("expected admin user to be found")
	}
	if session.AuthProto != gosnmp.SHA {
		t.Errorf("AuthProto = %v, want SHA", session.AuthProto)
	}
	if session.AuthKey == "" {
		t.Error("expected localized AuthKey to be set")
	}

	if _, ok := users.Get("nobody"); ok {
		t.Error("expected unknown user to be absent")
	}
}
