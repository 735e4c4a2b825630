package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/jarcoal/httpmock"
)

func newTestDownloader(maxRetries int) (*Downloader, *httpmock.MockTransport) {
	cfg := testConfig()
	cfg.Download.MaxRetries = maxRetries
	d := NewDownloader(cfg, NewMetrics())
	transport := httpmock.NewMockTransport()
	d.WithTransport(transport)
	return d, transport
}

func testRecord(refs map[models.AssetRole]string) *models.Record {
	return &models.Record{
		ID:           "R1",
		Title:        "Record One",
		DetailGroups: []models.DetailGroup{},
		AssetRefs:    refs,
	}
}

func TestDownloadIsolatesFailures(t *testing.T) {
	d, transport := newTestDownloader(0)
	cad := httpmock.NewBytesResponse(http.StatusOK, []byte("ISO-10303-21;"))
	cad.Header.Set("Content-Type", "application/step")
	transport.RegisterResponder("GET", testOrigin+"/f/r1.step", httpmock.ResponderFromResponse(cad))
	transport.RegisterResponder("GET", testOrigin+"/img/r1.jpg", httpmock.NewStringResponder(http.StatusInternalServerError, ""))
	transport.RegisterResponder("GET", testOrigin+"/doc/r1", httpmock.NewStringResponder(http.StatusNotFound, ""))

	rec := testRecord(map[models.AssetRole]string{
		models.RolePDF:          testOrigin + "/doc/r1",
		models.RolePrimaryImage: testOrigin + "/img/r1.jpg",
		models.RoleCAD:          testOrigin + "/f/r1.step",
	})

	var got []models.AssetBlob
	failures, err := d.Download(context.Background(), rec, func(b models.AssetBlob) error {
		got = append(got, b)
		return nil
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
	if len(got) != 1 {
		t.Fatalf("blobs = %d, want 1", len(got))
	}
	if got[0].Role != models.RoleCAD || string(got[0].Data) != "ISO-10303-21;" {
		t.Errorf("blob = %+v", got[0])
	}
	if got[0].ContentType != "application/step" {
		t.Errorf("content type = %q", got[0].ContentType)
	}
}

func TestDownloadCanonicalOrder(t *testing.T) {
	d, transport := newTestDownloader(0)
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "x"))

	rec := testRecord(map[models.AssetRole]string{
		models.RolePDF:          testOrigin + "/a.pdf",
		models.RoleMountImage:   testOrigin + "/m.jpg",
		models.RoleThreeD:       testOrigin + "/t.zip",
		models.RolePrimaryImage: testOrigin + "/p.jpg",
		models.RoleCAD:          testOrigin + "/c.step",
	})

	var roles []models.AssetRole
	if _, err := d.Download(context.Background(), rec, func(b models.AssetBlob) error {
		roles = append(roles, b.Role)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	for i, role := range models.AssetRoles {
		if roles[i] != role {
			t.Fatalf("order = %v, want %v", roles, models.AssetRoles)
		}
	}
}

func TestDownloadRetries(t *testing.T) {
	d, transport := newTestDownloader(2)
	calls := 0
	transport.RegisterResponder("GET", testOrigin+"/flaky.zip", func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "PK"), nil
	})

	rec := testRecord(map[models.AssetRole]string{models.RoleThreeD: testOrigin + "/flaky.zip"})
	failures, err := d.Download(context.Background(), rec, func(models.AssetBlob) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if failures != 0 || calls != 3 {
		t.Fatalf("failures = %d, calls = %d; want 0 and 3", failures, calls)
	}
}

func TestDownloadSinkError(t *testing.T) {
	d, transport := newTestDownloader(0)
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "x"))

	sinkErr := errors.New("archive finalized")
	rec := testRecord(map[models.AssetRole]string{models.RoleCAD: testOrigin + "/c.step"})
	_, err := d.Download(context.Background(), rec, func(models.AssetBlob) error { return sinkErr })
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want sink error", err)
	}
}

func TestDownloadCancelledDuringPacing(t *testing.T) {
	cfg := testConfig()
	cfg.Download.Delay = time.Hour
	d := NewDownloader(cfg, nil)
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "x"))
	d.WithTransport(transport)

	ctx, cancel := context.WithCancel(context.Background())
	rec := testRecord(map[models.AssetRole]string{
		models.RoleCAD: testOrigin + "/c.step",
		models.RolePDF: testOrigin + "/d.pdf",
	})

	stored := 0
	_, err := d.Download(ctx, rec, func(models.AssetBlob) error {
		stored++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1", stored)
	}
}

func TestPaceWithoutDelay(t *testing.T) {
	d, _ := newTestDownloader(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := d.Pace(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("zero delay should not pace")
	}
}

func TestDownloadDoesNotRetryMissingAsset(t *testing.T) {
	d, transport := newTestDownloader(3)
	calls := 0
	transport.RegisterResponder("GET", testOrigin+"/gone.pdf", func(*http.Request) (*http.Response, error) {
		calls++
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	})

	rec := testRecord(map[models.AssetRole]string{models.RolePDF: testOrigin + "/gone.pdf"})
	failures, err := d.Download(context.Background(), rec, func(models.AssetBlob) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if failures != 1 || calls != 1 {
		t.Fatalf("failures = %d, calls = %d; want 1 and 1", failures, calls)
	}
}

func TestDownloadRejectsOversizedAsset(t *testing.T) {
	cfg := testConfig()
	cfg.Download.MaxAssetBytes = 16
	d := NewDownloader(cfg, NewMetrics())
	transport := httpmock.NewMockTransport()
	d.WithTransport(transport)

	transport.RegisterResponder("GET", testOrigin+"/f/big.step",
		httpmock.NewBytesResponder(http.StatusOK, bytes.Repeat([]byte("x"), 64)))
	transport.RegisterResponder("GET", testOrigin+"/img/fits.jpg",
		httpmock.NewBytesResponder(http.StatusOK, bytes.Repeat([]byte("y"), 16)))

	rec := testRecord(map[models.AssetRole]string{
		models.RoleCAD:          testOrigin + "/f/big.step",
		models.RolePrimaryImage: testOrigin + "/img/fits.jpg",
	})

	var stored []models.AssetBlob
	failures, err := d.Download(context.Background(), rec, func(b models.AssetBlob) error {
		stored = append(stored, b)
		return nil
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	if len(stored) != 1 || stored[0].Role != models.RolePrimaryImage || len(stored[0].Data) != 16 {
		t.Fatalf("stored = %+v, want only the image at its full size", stored)
	}
}
