package channelauth

import "testing"

func strp(s string) *string { return &s }

func TestVerifyPublicBypassesAuth(t *testing.T) {
	v := New("secret")
	if err := v.Verify("room-1", "sock.1", nil, nil); err != nil {
		t.Fatalf("public channel should bypass auth: %v", err)
	}
	bad := "garbage"
	if err := v.Verify("room-1", "sock.1", &bad, nil); err != nil {
		t.Fatalf("public channel should bypass auth regardless of supplied auth: %v", err)
	}
}

func TestSignVerifyRoundTripPrivate(t *testing.T) {
	v := New("secret")
	sig := v.Sign("sock.1", "private-room", nil)
	if err := v.Verify("private-room", "sock.1", &sig, nil); err != nil {
		t.Fatalf("expected round-trip to verify: %v", err)
	}
}

func TestSignVerifyRoundTripPresenceWithData(t *testing.T) {
	v := New("secret")
	data := `{"user_id":"u1"}`
	sig := v.Sign("sock.1", "presence-chat", &data)
	if err := v.Verify("presence-chat", "sock.1", &sig, &data); err != nil {
		t.Fatalf("expected round-trip to verify: %v", err)
	}
}

func TestVerifyFailsOnMissingAuth(t *testing.T) {
	v := New("secret")
	if err := v.Verify("private-room", "sock.1", nil, nil); err == nil {
		t.Fatal("expected error for missing auth on private channel")
	}
}

func TestVerifyFailsOnTamperedSignature(t *testing.T) {
	v := New("secret")
	sig := v.Sign("sock.1", "private-room", nil)
	tampered := sig[:len(sig)-1] + "0"
	if tampered == sig {
		tampered = sig[:len(sig)-1] + "1"
	}
	if err := v.Verify("private-room", "sock.1", &tampered, nil); err == nil {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func TestVerifyFailsOnTamperedSocketID(t *testing.T) {
	v := New("secret")
	sig := v.Sign("sock.1", "private-room", nil)
	if err := v.Verify("private-room", "sock.2", &sig, nil); err == nil {
		t.Fatal("expected signature bound to a different socket id to fail")
	}
}

func TestVerifyFailsOnTamperedChannel(t *testing.T) {
	v := New("secret")
	sig := v.Sign("sock.1", "private-room", nil)
	if err := v.Verify("private-other", "sock.1", &sig, nil); err == nil {
		t.Fatal("expected signature bound to a different channel to fail")
	}
}

func TestVerifyFailsOnTamperedChannelData(t *testing.T) {
	v := New("secret")
	data := `{"user_id":"u1"}`
	sig := v.Sign("sock.1", "presence-chat", &data)
	other := `{"user_id":"u2"}`
	if err := v.Verify("presence-chat", "sock.1", &sig, &other); err == nil {
		t.Fatal("expected signature bound to different channel_data to fail")
	}
}

// Documents the intentional sign/verify asymmetry for missing presence
// channel_data: sign substitutes "{}", verify substitutes "". A presence
// subscribe that omits channel_data cannot round-trip through this system's
// own signer.
func TestPresenceMissingChannelDataAsymmetry(t *testing.T) {
	v := New("secret")
	sig := v.Sign("sock.1", "presence-chat", nil)
	if err := v.Verify("presence-chat", "sock.1", &sig, nil); err == nil {
		t.Fatal("expected sign/verify asymmetry to cause verification failure when channel_data is omitted")
	}
}
