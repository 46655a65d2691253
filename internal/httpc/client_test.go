package httpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func TestClientTimeout(t *testing.T) {
	if Client.Timeout != DefaultTimeout {
		t.Errorf("timeout: got %v", Client.Timeout)
	}
}

func TestContextCarriesClient(t *testing.T) {
	ctx := Context(context.Background())
	if got, _ := ctx.Value(oauth2.HTTPClient).(*http.Client); got != Client {
		t.Error("context should carry the shared client")
	}
}

func TestAuthorizedAddsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc", TokenType: "Bearer"})
	resp, err := Authorized(context.Background(), ts).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if auth != "Bearer abc" {
		t.Errorf("Authorization: got %q", auth)
	}
}
