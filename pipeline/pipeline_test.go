package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/page"
	"github.com/aluiziolira/go-harvest-models/scraper"
	"github.com/jarcoal/httpmock"
	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
)

const origin = "https://site.test"

type stubSource struct {
	snap *page.Snapshot
	err  error
}

func (s stubSource) Capture(context.Context) (*page.Snapshot, error) {
	return s.snap, s.err
}

type stubDiscoverer struct {
	ids []models.Identifier
	err error
}

func (d stubDiscoverer) Discover(context.Context, *page.Snapshot) (*models.DiscoveryResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	if len(d.ids) == 0 {
		return nil, scraper.ErrNoIdentifiers
	}
	return &models.DiscoveryResult{IDs: d.ids, Strategy: "stub"}, nil
}

type countingFetcher struct {
	inner RecordFetcher
	calls int
}

func (f *countingFetcher) Fetch(ctx context.Context, snap *page.Snapshot, id models.Identifier) (*models.Record, error) {
	f.calls++
	return f.inner.Fetch(ctx, snap, id)
}

func accept(context.Context, *models.DiscoveryResult) (bool, error) { return true, nil }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Page.URL = origin + "/catalog"
	cfg.Timeout = 5 * time.Second
	cfg.Download.Delay = 0
	return cfg
}

func testSnapshot() *page.Snapshot {
	return &page.Snapshot{
		URL: origin + "/catalog",
		SessionStorage: map[string]string{
			"categoryName": `"Casters"`,
			"seriesName":   "Heavy/Duty",
		},
	}
}

// mockSite serves three detail records. Every asset of M2 fails.
func mockSite() *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	titles := map[string]string{"M1": "Caster One", "M2": "Caster Two", "M3": "Caster Three"}
	for id, title := range titles {
		body := fmt.Sprintf(`{"code":0,"data":{"title":%q,"wheelAttrs":{"Diameter":"%s mm"},"specs":{"Load":"100"},"cadUrl":"/files/%s.step","images":["/img/%s.jpg"]}}`,
			title, strings.TrimPrefix(id, "M"), id, id)
		transport.RegisterResponder("GET", origin+"/api/model/"+id, httpmock.NewStringResponder(http.StatusOK, body))
	}
	for _, id := range []string{"M1", "M3"} {
		transport.RegisterResponder("GET", origin+"/files/"+id+".step", httpmock.NewBytesResponder(http.StatusOK, []byte("STEP "+id)))
		transport.RegisterResponder("GET", origin+"/img/"+id+".jpg", httpmock.NewBytesResponder(http.StatusOK, []byte("JPEG "+id)))
	}
	transport.RegisterResponder("GET", origin+"/files/M2.step", httpmock.NewStringResponder(http.StatusInternalServerError, ""))
	transport.RegisterResponder("GET", origin+"/img/M2.jpg", httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusNotFound, ""))
	return transport
}

func newTestPipeline(t *testing.T, ids []models.Identifier, transport *httpmock.MockTransport, confirm ConfirmFunc, observer Observer) (*Pipeline, *countingFetcher) {
	t.Helper()
	cfg := testConfig()
	metrics := scraper.NewMetrics()

	client := scraper.NewAPIClient(cfg, metrics)
	client.WithTransport(transport)
	fetcher, err := scraper.NewFetcher(cfg, client, metrics)
	if err != nil {
		t.Fatalf("NewFetcher() error = %v", err)
	}
	downloader := scraper.NewDownloader(cfg, metrics)
	downloader.WithTransport(transport)

	counting := &countingFetcher{inner: fetcher}
	p, err := New(cfg, Deps{
		Source:     stubSource{snap: testSnapshot()},
		Discoverer: stubDiscoverer{ids: ids},
		Fetcher:    counting,
		Downloader: downloader,
		Confirmer:  confirm,
		Observer:   observer,
		Clock: func() time.Time {
			return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, counting
}

type archiveView struct {
	folders []string
	files   map[string][]byte
}

func readArchive(t *testing.T, data []byte) archiveView {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	view := archiveView{files: map[string][]byte{}}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			view.folders = append(view.folders, strings.TrimSuffix(f.Name, "/"))
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		view.files[f.Name] = body
	}
	return view
}

func (v archiveView) filesIn(folder string) []string {
	var out []string
	for name := range v.files {
		if strings.HasPrefix(name, folder+"/") {
			out = append(out, strings.TrimPrefix(name, folder+"/"))
		}
	}
	return out
}

func summaryRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open summary: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	var states []models.PipelineState
	p, _ := newTestPipeline(t, []models.Identifier{"M1", "M2", "M3"}, mockSite(), accept, func(s models.PipelineState) {
		states = append(states, s)
	})

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Filename != "Casters-Heavy_Duty-2025-03-04 05-06-07.zip" {
		t.Errorf("filename = %q", result.Filename)
	}
	if len(result.Records) != 3 || result.AssetFailures != 2 {
		t.Errorf("records = %d, asset failures = %d", len(result.Records), result.AssetFailures)
	}

	view := readArchive(t, result.Archive)
	wantFolders := []string{"Caster One_M1", "Caster Two_M2", "Caster Three_M3"}
	if len(view.folders) != len(wantFolders) {
		t.Fatalf("folders = %v, want %v", view.folders, wantFolders)
	}
	for i, name := range wantFolders {
		if view.folders[i] != name {
			t.Fatalf("folders = %v, want %v", view.folders, wantFolders)
		}
	}

	second := view.filesIn("Caster Two_M2")
	if len(second) != 1 || second[0] != "Caster Two_details.xlsx" {
		t.Errorf("folder 2 files = %v, want only the detail sheet", second)
	}
	first := view.filesIn("Caster One_M1")
	if len(first) != 3 {
		t.Errorf("folder 1 files = %v, want detail sheet plus 2 assets", first)
	}
	if string(view.files["Caster One_M1/Caster One_cad.step"]) != "STEP M1" {
		t.Errorf("cad asset missing or wrong")
	}
	if _, ok := view.files["Caster One_M1/Caster One_image.jpg"]; !ok {
		t.Errorf("image asset missing")
	}

	rows := summaryRows(t, view.files["summary.xlsx"])
	if len(rows[0]) != 4 {
		t.Fatalf("summary header = %v, want 3 data columns plus the attribute column", rows[0])
	}
	if rows[1][0] != "wheel attributes: Diameter" || rows[1][2] != "2 mm" {
		t.Errorf("summary row = %v", rows[1])
	}

	if _, ok := view.files["manifest.json"]; !ok {
		t.Errorf("manifest missing")
	}

	if got := p.State(); got.Phase != models.PhaseDone || got.StatusMessage != "Done: 3 models archived" {
		t.Errorf("final state = %+v", got)
	}

	var progress []int
	for _, s := range states {
		if s.Phase == models.PhaseFetching {
			progress = append(progress, s.Progress)
		}
	}
	if fmt.Sprint(progress) != "[0 33 67]" {
		t.Errorf("progress = %v, want [0 33 67]", progress)
	}
}

func TestRunSkipsMissingRecord(t *testing.T) {
	p, fetcher := newTestPipeline(t, []models.Identifier{"M1", "GONE", "M3"}, mockSite(), accept, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "GONE" {
		t.Errorf("skipped = %v", result.Skipped)
	}
	view := readArchive(t, result.Archive)
	if len(view.folders) != 2 {
		t.Fatalf("folders = %v, want 2", view.folders)
	}
	for _, f := range view.folders {
		if strings.Contains(f, "GONE") {
			t.Fatalf("skipped record has a folder: %v", view.folders)
		}
	}
}

func TestRunAllRecordsFail(t *testing.T) {
	p, _ := newTestPipeline(t, []models.Identifier{"X1", "X2"}, mockSite(), accept, nil)

	result, err := p.Run(context.Background())
	if !errors.Is(err, ErrNoRecords) || result != nil {
		t.Fatalf("Run() = %v, %v; want ErrNoRecords", result, err)
	}
	if st := p.State(); st.Phase != models.PhaseFailed || st.StatusMessage != ErrNoRecords.Error() {
		t.Fatalf("state = %+v", st)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("failed pipeline must be restarted before running again, got %v", err)
	}
	if err := p.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if st := p.State(); st.Phase != models.PhaseIdle {
		t.Fatalf("state after restart = %+v", st)
	}
}

func TestRunDiscoveryEmpty(t *testing.T) {
	p, fetcher := newTestPipeline(t, nil, mockSite(), accept, nil)

	if _, err := p.Run(context.Background()); !errors.Is(err, scraper.ErrNoIdentifiers) {
		t.Fatalf("err = %v, want ErrNoIdentifiers", err)
	}
	if st := p.State(); st.Phase != models.PhaseFailed {
		t.Fatalf("state = %+v", st)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher should not run")
	}
}

func TestRunDeclined(t *testing.T) {
	var seen int
	decline := func(_ context.Context, found *models.DiscoveryResult) (bool, error) {
		seen = len(found.IDs)
		return false, nil
	}
	p, fetcher := newTestPipeline(t, []models.Identifier{"M1", "M2"}, mockSite(), decline, nil)

	result, err := p.Run(context.Background())
	if err != nil || result != nil {
		t.Fatalf("Run() = %v, %v; want nil, nil", result, err)
	}
	if seen != 2 {
		t.Errorf("confirmer saw %d models, want 2", seen)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.calls)
	}
	if st := p.State(); st.Phase != models.PhaseIdle {
		t.Errorf("state = %+v, want idle", st)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	confirmThenCancel := func(context.Context, *models.DiscoveryResult) (bool, error) {
		cancel()
		return true, nil
	}
	p, fetcher := newTestPipeline(t, []models.Identifier{"M1"}, mockSite(), confirmThenCancel, nil)

	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st := p.State(); st.Phase != models.PhaseFailed || st.StatusMessage != "cancelled" {
		t.Fatalf("state = %+v", st)
	}
	if fetcher.calls != 0 {
		t.Fatalf("no record should be fetched after cancellation")
	}
}

func TestRunIsRepeatable(t *testing.T) {
	transport := mockSite()
	p, _ := newTestPipeline(t, []models.Identifier{"M1", "M2", "M3"}, transport, accept, nil)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Restart(); err != nil {
		t.Fatal(err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	a, b := readArchive(t, first.Archive), readArchive(t, second.Archive)
	if fmt.Sprint(a.folders) != fmt.Sprint(b.folders) {
		t.Fatalf("folders differ: %v vs %v", a.folders, b.folders)
	}
	if fmt.Sprint(summaryRows(t, a.files["summary.xlsx"])) != fmt.Sprint(summaryRows(t, b.files["summary.xlsx"])) {
		t.Fatalf("summary sheets differ")
	}
}

func TestArchiveFilename(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC)
	if got := ArchiveFilename("Wheels: PU", "", at); got != "Wheels_ PU-_-2024-12-31 23-59-01.zip" {
		t.Fatalf("ArchiveFilename() = %q", got)
	}
}
