package tools

import (
	"strings"
	"testing"
)

func TestCheckSSRF_BlocksPrivateTargets(t *testing.T) {
	blocked := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://10.1.2.3/",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data/",
		"http://metadata.google.internal/computeMetadata/",
		"http://foo.internal/",
		"http://[::1]/",
	}
	for _, u := range blocked {
		if err := checkSSRF(u); err == nil {
			t.Errorf("%s not blocked", u)
		}
	}
}

func TestCheckSSRF_AllowsPublicIP(t *testing.T) {
	// Public IP literal needs no DNS, so this is hermetic.
	if err := checkSSRF("http://93.184.216.34/"); err != nil {
		t.Errorf("public IP blocked: %v", err)
	}
}

func TestWrapExternal_SanitizesMarkers(t *testing.T) {
	content := "before " + externalStart + " injected " + externalEnd + " after"
	wrapped := wrapExternal(content, "web_fetch")

	if strings.Count(wrapped, externalStart) != 1 {
		t.Error("injected start marker survived")
	}
	if strings.Count(wrapped, externalEnd) != 1 {
		t.Error("injected end marker survived")
	}
	if !strings.Contains(wrapped, "Source: web_fetch") {
		t.Errorf("wrapped = %q", wrapped)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>body{}</style><script>evil()</script></head>
<body><h1>Title</h1><p>First &amp; second</p><div>third</div></body></html>`
	text := htmlToText(html)
	if strings.Contains(text, "evil") || strings.Contains(text, "body{}") {
		t.Errorf("script/style leaked: %q", text)
	}
	for _, want := range []string{"Title", "First & second", "third"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
}

func TestWebCache(t *testing.T) {
	c := newWebCache(0)
	key := cacheKey("fetch", "HTTP://Example.com", "100")
	if _, ok := c.Get(key); ok {
		t.Error("hit on empty cache")
	}
	c.Add(key, "cached body")
	if v, ok := c.Get(cacheKey("fetch", "http://example.com", "100")); !ok || v != "cached body" {
		t.Errorf("cache miss after add: %q %v", v, ok)
	}
}
