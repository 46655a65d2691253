package cloudhost

import (
	"context"
	"errors"
	"testing"

	compute "google.golang.org/api/compute/v1"
)

type fakeLookup struct {
	inst  *compute.Instance
	err   error
	calls []Ref
}

func (f *fakeLookup) Instance(ctx context.Context, ref Ref) (*compute.Instance, error) {
	f.calls = append(f.calls, ref)
	return f.inst, f.err
}

func running(natIP string) *compute.Instance {
	return &compute.Instance{
		Status: "RUNNING",
		NetworkInterfaces: []*compute.NetworkInterface{
			{AccessConfigs: []*compute.AccessConfig{{Name: "internal"}, {NatIP: natIP}}},
		},
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Ref
		ok      bool
		wantErr bool
	}{
		{in: "10.0.0.5", ok: false},
		{in: "render.example.com:48010", ok: false},
		{in: "gce://proj/us-west1-b/render-1", want: Ref{"proj", "us-west1-b", "render-1", ""}, ok: true},
		{in: "gce://proj/us-west1-b/render-1:9000", want: Ref{"proj", "us-west1-b", "render-1", "9000"}, ok: true},
		{in: "gce://proj/render-1", ok: true, wantErr: true},
		{in: "gce://proj//render-1", ok: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := ParseRef(tt.in)
			if ok != tt.ok || (err != nil) != tt.wantErr {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if err != nil && !errors.Is(err, ErrBadRef) {
				t.Errorf("error %v should wrap ErrBadRef", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRefString(t *testing.T) {
	r := Ref{Project: "p", Zone: "z", Instance: "i", Port: "1"}
	if r.String() != "gce://p/z/i:1" {
		t.Error(r.String())
	}
}

func TestResolve_PlainAddressPassesThrough(t *testing.T) {
	l := &fakeLookup{}
	r := NewResolver(WithLookup(l))
	got, err := r.Resolve(context.Background(), "192.168.1.20")
	if err != nil || got != "192.168.1.20" {
		t.Errorf("got %q, %v", got, err)
	}
	if len(l.calls) != 0 {
		t.Error("plain address should not be looked up")
	}
}

func TestResolve_Instance(t *testing.T) {
	l := &fakeLookup{inst: running("34.1.2.3")}
	r := NewResolver(WithLookup(l))

	got, err := r.Resolve(context.Background(), "gce://proj/zone-a/render")
	if err != nil || got != "34.1.2.3" {
		t.Errorf("got %q, %v", got, err)
	}
	got, err = r.Resolve(context.Background(), "gce://proj/zone-a/render:48010")
	if err != nil || got != "34.1.2.3:48010" {
		t.Errorf("with port: got %q, %v", got, err)
	}
	if len(l.calls) != 2 || l.calls[0].Instance != "render" {
		t.Errorf("calls: %+v", l.calls)
	}
}

func TestResolve_LookupError(t *testing.T) {
	boom := errors.New("permission denied")
	r := NewResolver(WithLookup(&fakeLookup{err: boom}))
	if _, err := r.Resolve(context.Background(), "gce://p/z/i"); !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}

func TestExternalIP(t *testing.T) {
	if _, err := ExternalIP(&compute.Instance{Status: "TERMINATED"}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("stopped: got %v", err)
	}
	if _, err := ExternalIP(&compute.Instance{Status: "RUNNING"}); !errors.Is(err, ErrNoExternalIP) {
		t.Errorf("no nat: got %v", err)
	}
	if ip, err := ExternalIP(running("35.0.0.1")); err != nil || ip != "35.0.0.1" {
		t.Errorf("got %q, %v", ip, err)
	}
}
