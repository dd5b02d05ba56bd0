/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	updates []pipeline.ItemUpdate
	err     error
}

func (r *recorder) sink(_ context.Context, u pipeline.ItemUpdate) error {
	r.updates = append(r.updates, u)
	return r.err
}

func serve(t *testing.T, rec *recorder, opts ...HandlerOption) *httptest.Server {
	t.Helper()
	h, err := NewHandler(rec.sink, opts...)
	if err != nil {
		t.Fatalf("NewHandler() = %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, headers map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() = %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestGithubCompactPayload(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec)

	code, body := post(t, srv.URL+GithubRoute, `{"owner":"acme","repo":"widgets","prId":4,"status":"closed"}`, nil)
	if code != http.StatusAccepted || body != "{}" {
		t.Errorf("response: got = %d %s, wanted = 202 {}", code, body)
	}
	want := []pipeline.ItemUpdate{{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: "closed"}}
	if diff := cmp.Diff(want, rec.updates); diff != "" {
		t.Errorf("updates (-want +got):\n%s", diff)
	}

	for _, bad := range []string{`{"owner":"acme","repo":"widgets","prId":4}`, `not json`, `{}`} {
		code, body := post(t, srv.URL+GithubRoute, bad, nil)
		if code != http.StatusBadRequest || body != `{"error":"Invalid payload"}` {
			t.Errorf("post(%s): got = %d %s, wanted = 400", bad, code, body)
		}
	}
	if len(rec.updates) != 1 {
		t.Errorf("invalid payloads reached the sink: %v", rec.updates)
	}
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGithubNativeEvent(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, WithGithubSecret("s3cret"))

	merged := `{"action":"closed","number":4,"pull_request":{"merged":true},"repository":{"full_name":"acme/widgets"}}`
	code, _ := post(t, srv.URL+GithubRoute, merged, map[string]string{
		"X-GitHub-Event":      "pull_request",
		"X-Hub-Signature-256": sign("s3cret", merged),
	})
	if code != http.StatusAccepted {
		t.Fatalf("status: got = %d, wanted = 202", code)
	}

	labeled := `{"action":"labeled","number":4,"repository":{"full_name":"acme/widgets"}}`
	post(t, srv.URL+GithubRoute, labeled, map[string]string{
		"X-GitHub-Event":      "pull_request",
		"X-Hub-Signature-256": sign("s3cret", labeled),
	})

	code, _ = post(t, srv.URL+GithubRoute, merged, map[string]string{
		"X-GitHub-Event":      "pull_request",
		"X-Hub-Signature-256": sign("wrong", merged),
	})
	if code != http.StatusBadRequest {
		t.Errorf("bad signature: got = %d, wanted = 400", code)
	}

	want := []pipeline.ItemUpdate{{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: pipeline.StateMerged}}
	if diff := cmp.Diff(want, rec.updates); diff != "" {
		t.Errorf("updates (-want +got):\n%s", diff)
	}
	if !rec.updates[0].Closed() {
		t.Error("merged update is not Closed()")
	}
}

func TestGitlabPayloads(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, WithGitlabToken("tok"))

	post(t, srv.URL+GitlabRoute, `{"repoURL":"https://gitlab.com/acme/widgets/","mrId":7,"status":"opened"}`, nil)
	post(t, srv.URL+GitlabRoute, `{"object_kind":"merge_request","project":{"web_url":"https://gitlab.com/acme/widgets"},"object_attributes":{"iid":8,"state":"merged"}}`,
		map[string]string{"X-Gitlab-Event": "Merge Request Hook", "X-Gitlab-Token": "tok"})
	code, _ := post(t, srv.URL+GitlabRoute, `{"object_kind":"merge_request","project":{"web_url":"https://gitlab.com/acme/widgets"},"object_attributes":{"iid":9,"state":"opened"}}`,
		map[string]string{"X-Gitlab-Event": "Merge Request Hook", "X-Gitlab-Token": "nope"})
	if code != http.StatusBadRequest {
		t.Errorf("bad token: got = %d, wanted = 400", code)
	}
	code, _ = post(t, srv.URL+GitlabRoute, `{"object_kind":"push"}`,
		map[string]string{"X-Gitlab-Event": "Push Hook", "X-Gitlab-Token": "tok"})
	if code != http.StatusAccepted {
		t.Errorf("push hook: got = %d, wanted = 202", code)
	}

	want := []pipeline.ItemUpdate{
		{Provider: pipeline.ProviderGitlab, ItemKey: "https://gitlab.com/acme/widgets", ItemID: 7, State: "opened"},
		{Provider: pipeline.ProviderGitlab, ItemKey: "https://gitlab.com/acme/widgets", ItemID: 8, State: "merged"},
	}
	if diff := cmp.Diff(want, rec.updates); diff != "" {
		t.Errorf("updates (-want +got):\n%s", diff)
	}
}

func TestSinkFailure(t *testing.T) {
	srv := serve(t, &recorder{err: errors.New("queue full")})
	code, _ := post(t, srv.URL+GithubRoute, `{"owner":"a","repo":"b","prId":1,"status":"open"}`, nil)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status: got = %d, wanted = 503", code)
	}
}

func TestPoster(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if got, want := body["text"], "hello"; got != want {
			t.Errorf("text: got = %q, wanted = %q", got, want)
		}
		io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	p, err := NewPoster(WithPostRetry(retry.RetryConfig{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))
	if err != nil {
		t.Fatalf("NewPoster() = %v", err)
	}
	got, err := p.Post(context.Background(), srv.URL+"/services/T/B/X", "hello")
	if err != nil {
		t.Fatalf("Post() = %v", err)
	}
	if got != "ok" {
		t.Errorf("Post(): got = %q, wanted = %q", got, "ok")
	}

	if _, err := p.Post(context.Background(), "", "hello"); err == nil {
		t.Error("Post(no target) = nil, wanted error")
	}
}

func TestPosterRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "no_service")
	}))
	t.Cleanup(srv.Close)

	p, err := NewPoster()
	if err != nil {
		t.Fatalf("NewPoster() = %v", err)
	}
	_, err = p.Post(context.Background(), srv.URL+"/services/secret", "hello")
	var ae *platforms.APIError
	if !errors.As(err, &ae) || ae.StatusCode != http.StatusNotFound {
		t.Fatalf("Post() = %v, wanted a 404 APIError", err)
	}
	if strings.Contains(ae.Error(), "secret") {
		t.Errorf("error leaks the webhook path: %v", ae)
	}
}
