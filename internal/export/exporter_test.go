package export_test

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/papers"
)

type staticLister struct {
	papers []papers.Paper
	err    error
}

func (lister staticLister) List(int, int) ([]papers.Paper, error) {
	return lister.papers, lister.err
}

type exportCounter struct {
	exported int
}

func (counter *exportCounter) PapersExported(count int) {
	counter.exported += count
}

func TestExportWritesRankedFiles(testInstance *testing.T) {
	outputDirectory := testInstance.TempDir()
	lister := staticLister{papers: []papers.Paper{
		{ID: "2510.00001", Title: "Alpha: Robots!", URL: "u1", RelevanceScore: 7.5, PublishedDate: "2025-10-10T10:00:00Z"},
		{ID: "2510.00002", Title: "Beta", URL: "u2", RelevanceScore: 9, PublishedDate: "2025-10-11"},
		{ID: "2510.00003", Title: "Too low", RelevanceScore: 5.9, PublishedDate: "2025-10-10"},
		{ID: "2510.00004", Title: "Too early", RelevanceScore: 9.5, PublishedDate: "2025-10-01T00:00:00Z"},
		{ID: "2510.00005", Title: "？？？", RelevanceScore: 7.5, PublishedDate: "not a date"},
	}}
	counter := &exportCounter{}
	exporter := export.NewExporter(lister, zap.NewNop(), counter)

	result, exportError := exporter.Export(export.Options{
		MinScore:        6,
		StartDate:       "2025-10-10",
		EndDate:         "2025-10-11",
		OutputDirectory: outputDirectory,
	})
	require.NoError(testInstance, exportError)

	expectedFolder := filepath.Join(outputDirectory, "2025-10-10_to_2025-10-11")
	expectedResult := export.Result{
		TotalPapers:    5,
		ExportedPapers: 3,
		MinScore:       6,
		OutputFolder:   expectedFolder,
		DateRange:      "2025-10-10_to_2025-10-11",
	}
	if difference := cmp.Diff(expectedResult, result); difference != "" {
		testInstance.Fatalf("unexpected result (-want +got):\n%s", difference)
	}
	require.Equal(testInstance, 3, counter.exported)

	entries, readError := os.ReadDir(expectedFolder)
	require.NoError(testInstance, readError)
	fileNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		fileNames = append(fileNames, entry.Name())
	}
	sort.Strings(fileNames)
	expectedFileNames := []string{
		"001_090_2510.00002_Beta.md",
		"002_075_2510.00001_Alpha_Robots.md",
		"003_075_2510.00005_2510.00005.md",
	}
	if difference := cmp.Diff(expectedFileNames, fileNames); difference != "" {
		testInstance.Fatalf("unexpected files (-want +got):\n%s", difference)
	}

	contents, contentsError := os.ReadFile(filepath.Join(expectedFolder, "001_090_2510.00002_Beta.md"))
	require.NoError(testInstance, contentsError)
	expectedDocument := strings.Join([]string{
		"# Beta\n",
		"**相关性评分**: 9.0/10\n",
		"**排名**: #1\n",
		"",
		"---\n",
		"",
		strings.Join([]string{
			"## 基本信息\n",
			"- **arXiv ID**: [2510.00002](u2)",
			"- **发布时间**: 2025-10-11",
			"- **相关性评分**: 9.0/10",
			"- **是否相关**: 否",
			"",
			"## 摘要\n",
			"",
			"",
			"## 相关链接\n",
			"- [arXiv 页面](u2)",
			"",
		}, "\n"),
	}, "\n")
	if difference := cmp.Diff(expectedDocument, string(contents)); difference != "" {
		testInstance.Fatalf("unexpected document (-want +got):\n%s", difference)
	}
}

func TestExportRequiresDateRange(testInstance *testing.T) {
	exporter := export.NewExporter(staticLister{}, nil, nil)
	_, exportError := exporter.Export(export.Options{StartDate: "2025-10-10"})
	require.ErrorIs(testInstance, exportError, export.ErrDateRangeRequired)
}

func TestExportPropagatesListFailure(testInstance *testing.T) {
	exporter := export.NewExporter(staticLister{err: errors.New("disk gone")}, nil, nil)
	_, exportError := exporter.Export(export.Options{StartDate: "2025-10-10", EndDate: "2025-10-10", OutputDirectory: testInstance.TempDir()})
	require.Error(testInstance, exportError)
}

func TestSafeTitle(testInstance *testing.T) {
	require.Equal(testInstance, "视觉语言_动作模型", export.SafeTitle(papers.Paper{ID: "x", Title: "视觉语言 动作模型！"}))
	require.Equal(testInstance, "x", export.SafeTitle(papers.Paper{ID: "x", Title: " !!! "}))
	longTitle := strings.Repeat("a", 60)
	require.Equal(testInstance, strings.Repeat("a", 50), export.SafeTitle(papers.Paper{ID: "x", Title: longTitle}))
}

func TestSelectPapersKeepsListingOrderForTies(testInstance *testing.T) {
	selected := export.SelectPapers([]papers.Paper{
		{ID: "first", RelevanceScore: 7},
		{ID: "second", RelevanceScore: 8},
		{ID: "third", RelevanceScore: 7},
	}, 6, "2025-10-10", "2025-10-10")
	identifiers := make([]string, 0, len(selected))
	for _, paper := range selected {
		identifiers = append(identifiers, paper.ID)
	}
	require.Equal(testInstance, []string{"second", "first", "third"}, identifiers)
}
