package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/crypto/bcrypt"
)

func TestLockerFromTopic(t *testing.T) {
	tests := []struct {
		description string
		input       string
		want        string
		wantOk      bool
	}{
		{
			description: "status topic",
			input:       "lockngo/locker_01/status",
			want:        "locker_01",
			wantOk:      true,
		},
		{
			description: "command topic",
			input:       "lockngo/locker_01/command",
		},
		{
			description: "foreign prefix",
			input:       "other/locker_01/status",
		},
		{
			description: "empty identity",
			input:       "lockngo//status",
		},
		{
			description: "extra level",
			input:       "lockngo/a/b/status",
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got, ok := lockerFromTopic(test.input)
			if ok != test.wantOk {
				t.Fatalf("ok = %v, want %v", ok, test.wantOk)
			}
			if !cmp.Equal(got, test.want) {
				t.Errorf("%#v != %#v", got, test.want)
			}
		})
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		description string
		input       string
		wantError   error
	}{
		{
			description: "opened",
			input:       "OPENED",
		},
		{
			description: "error",
			input:       "ERROR",
			wantError:   errLockerFailed,
		},
		{
			description: "offline",
			input:       "OFFLINE",
			wantError:   errLockerFailed,
		},
		{
			description: "lowercase",
			input:       "opened",
			wantError:   errLockerFailed,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			err := checkStatus(test.input)
			if !cmp.Equal(err, test.wantError, cmpopts.EquateErrors()) {
				t.Errorf("%#v != %#v", err, test.wantError)
			}
		})
	}
}

func TestReadPassword(t *testing.T) {
	got, err := readPassword(strings.NewReader("s3cret\r\nignored\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(string(got), "s3cret") {
		t.Errorf("%q != %q", got, "s3cret")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := hashPassword([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not match password: %v", err)
	}

	if _, err := hashPassword(nil); err == nil {
		t.Error("expected error for empty password")
	}
}
