package pexels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/tubeflow/internal/domain"
	providerx "github.com/John-Robertt/tubeflow/internal/provider"
)

const fixture = `{
  "page": 1,
  "per_page": 10,
  "videos": [
    {
      "id": 857251,
      "url": "https://www.pexels.com/video/penguins-swimming-857251/",
      "width": 1080,
      "height": 1920,
      "tags": [],
      "video_files": [
        {"quality": "sd", "width": 360, "height": 640, "link": "https://videos.pexels.test/857251-sd.mp4"},
        {"quality": "hd", "width": 540, "height": 960, "link": "https://videos.pexels.test/857251-hd540.mp4"},
        {"quality": "hd", "width": 1080, "height": 1920, "link": "https://videos.pexels.test/857251-hd.mp4"}
      ]
    },
    {
      "id": 42,
      "url": "https://www.pexels.com/video/ocean-42/",
      "width": 720,
      "height": 1280,
      "tags": "ocean, waves",
      "video_files": [
        {"quality": "sd", "width": 0, "height": 0, "link": "https://videos.pexels.test/42-sd.mp4"}
      ]
    },
    {"id": 7, "url": "https://www.pexels.com/video/empty-7/", "video_files": []}
  ]
}`

func TestParse(t *testing.T) {
	got, err := Provider{MinWidth: 720}.Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []domain.Candidate{
		{
			Source:      "pexels",
			ID:          "857251",
			PageURL:     "https://www.pexels.com/video/penguins-swimming-857251/",
			PreviewURL:  "https://videos.pexels.test/857251-sd.mp4",
			DownloadURL: "https://videos.pexels.test/857251-hd.mp4",
			Width:       1080,
			Height:      1920,
		},
		{
			Source:      "pexels",
			ID:          "42",
			PageURL:     "https://www.pexels.com/video/ocean-42/",
			Tags:        "ocean, waves",
			PreviewURL:  "https://videos.pexels.test/42-sd.mp4",
			DownloadURL: "https://videos.pexels.test/42-sd.mp4",
			Width:       720,
			Height:      1280,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("候选不符合预期 (-want +got):\n%s", diff)
	}
}

func TestParse_FallsBackToFirstFileWithLink(t *testing.T) {
	body := `{"videos":[{"id":9,"url":"https://www.pexels.com/video/penguin-9/","video_files":[
	  {"quality":"sd","width":360,"height":640,"link":""},
	  {"quality":"sd","width":540,"height":960,"link":"https://videos.pexels.test/9-540.mp4"}
	]}]}`
	got, err := Provider{MinWidth: 720}.Parse([]byte(body))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0].DownloadURL != "https://videos.pexels.test/9-540.mp4" || got[0].Width != 540 {
		t.Fatalf("期望退回第一个带链接的文件，实际 %+v", got)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := (Provider{}).Parse([]byte("<html>rate limited</html>")); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := (Provider{}).Parse(nil); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestFetch_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "k-123" {
			t.Errorf("Authorization 不符合预期：%q", got)
		}
		q := r.URL.Query()
		if q.Get("query") != "penguin swimming" || q.Get("orientation") != "portrait" || q.Get("per_page") != "15" {
			t.Errorf("查询参数不符合预期：%s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	p := Provider{APIKey: "k-123", BaseURL: srv.URL, PerPage: 15, MinWidth: 720}
	b, err := p.Fetch(context.Background(), providerx.Query{Text: "penguin swimming", Orientation: domain.Portrait}, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != fixture {
		t.Fatalf("body 不一致")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := Provider{APIKey: "k", BaseURL: srv.URL}
	_, err := p.Fetch(context.Background(), providerx.Query{Text: "x", Orientation: domain.Landscape}, srv.Client())
	se, ok := err.(*providerx.HTTPStatusError)
	if !ok || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("期望 HTTP 429，实际：%v", err)
	}
}

func TestFetch_MissingKey(t *testing.T) {
	_, err := Provider{}.Fetch(context.Background(), providerx.Query{Text: "x", Orientation: domain.Portrait}, http.DefaultClient)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
