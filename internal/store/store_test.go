package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		description string
		name        string
		input       string
		want        map[string]string
		wantError   error
	}{
		{
			description: "toml",
			name:        "device.toml",
			input:       "broker-host = \"192.168.1.100\"\nbroker-port = 1883\ndevice-id = \"locker_01\"\n",
			want: map[string]string{
				KeyBrokerHost: "192.168.1.100",
				KeyBrokerPort: "1883",
				KeyDeviceID:   "locker_01",
			},
		},
		{
			description: "yaml",
			name:        "device.yaml",
			input:       "broker-host: broker.local\nbroker-port: 8883\ndevice-id: locker_02\n",
			want: map[string]string{
				KeyBrokerHost: "broker.local",
				KeyBrokerPort: "8883",
				KeyDeviceID:   "locker_02",
			},
		},
		{
			description: "toml table",
			name:        "device.toml",
			input:       "[broker]\nhost = \"x\"\n",
			wantError:   &errorValue{},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), test.name)
			if err := os.WriteFile(path, []byte(test.input), 0600); err != nil {
				t.Fatal(err)
			}

			got, err := Open(path)

			if test.wantError != nil {
				if !cmp.Equal(err, test.wantError, cmpopts.EquateErrors()) {
					t.Errorf("%#v != %#v", err, test.wantError)
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
				if !cmp.Equal(got.values, test.want) {
					t.Errorf("%v", cmp.Diff(got.values, test.want))
				}
			}
		})
	}
}

func TestOpenMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(KeyDeviceID); !errors.Is(err, ErrNotFound) {
		t.Errorf("%v != %v", err, ErrNotFound)
	}
}

func TestPutPersists(t *testing.T) {
	for _, name := range []string{"device.toml", "device.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			s, err := Open(path)
			if err != nil {
				t.Fatal(err)
			}
			want := map[string]string{
				KeyBrokerHost: "10.0.0.2",
				KeyBrokerPort: "1884",
				KeyDeviceID:   "locker_07",
			}
			for k, v := range want {
				if err := s.Put(k, v); err != nil {
					t.Fatal(err)
				}
			}

			reopened, err := Open(path)
			if err != nil {
				t.Fatal(err)
			}
			for k, v := range want {
				got, err := reopened.Get(k)
				if err != nil {
					t.Fatal(err)
				}
				if got != v {
					t.Errorf("%v: %v != %v", k, got, v)
				}
			}
			if !cmp.Equal(reopened.Keys(), []string{KeyBrokerHost, KeyBrokerPort, KeyDeviceID}) {
				t.Errorf("unexpected keys %v", reopened.Keys())
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("%v != %v", info.Mode().Perm(), os.FileMode(0600))
			}
		})
	}
}
