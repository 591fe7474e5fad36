package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewAPIClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewAPIClient("http://127.0.0.1:8080", 3*time.Second)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
	if tr.RetryMax != 0 {
		t.Fatalf("检索 client 不应重试，实际 RetryMax=%d", tr.RetryMax)
	}
	if c.Timeout != 3*time.Second {
		t.Fatalf("期望 timeout=3s，实际 %v", c.Timeout)
	}
}

func TestNewAPIClient_DefaultTimeout(t *testing.T) {
	c, err := NewAPIClient("", 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.Timeout != DefaultAPITimeout {
		t.Fatalf("期望默认 timeout，实际 %v", c.Timeout)
	}
	if c.Transport.(*Transport).Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
}

func TestNewMediaClient_ProxySwitch(t *testing.T) {
	c1, err := NewMediaClient("http://127.0.0.1:8080", false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr1 := c1.Transport.(*Transport)
	if tr1.Base.Proxy != nil {
		t.Fatalf("media_proxy=false 时不应走代理")
	}
	if tr1.RetryMax != mediaRetryMax {
		t.Fatalf("下载 client 应有界重试，实际 RetryMax=%d", tr1.RetryMax)
	}

	c2, err := NewMediaClient("http://127.0.0.1:8080", true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c2.Transport.(*Transport).Base.Proxy == nil {
		t.Fatalf("media_proxy=true 时应走代理")
	}

	if _, err := NewMediaClient("", true); err == nil {
		t.Fatalf("media_proxy=true 且 proxy.url 为空时应报错")
	}
}

func TestNewAPIClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewAPIClient("http://[::1", 0); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestTransport_RetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("期望自动填充 User-Agent")
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := &http.Client{Transport: &Transport{Base: &http.Transport{}, ua: globalUA, RetryMax: 1}}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望重试后 200，实际 %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("期望 2 次请求，实际 %d", calls)
	}
}

func TestTransport_NoRetryReturnsStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &http.Client{Transport: &Transport{Base: &http.Transport{}, ua: globalUA, RetryMax: 0}}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("RetryMax=0 时应原样返回 502，实际 status=%d calls=%d", resp.StatusCode, calls)
	}
}
