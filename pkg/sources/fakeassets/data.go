package fakeassets

import (
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type mimeEntry struct {
	mime      string
	extension string
	weight    float64
	sizeMin   int64
	sizeMax   int64
}

var mimeTypes = []mimeEntry{
	{mime: "image/jpeg", extension: "jpg", weight: 0.25, sizeMin: 50_000, sizeMax: 6_000_000},
	{mime: "image/png", extension: "png", weight: 0.12, sizeMin: 80_000, sizeMax: 8_000_000},
	{mime: "image/heic", extension: "heic", weight: 0.05, sizeMin: 150_000, sizeMax: 12_000_000},
	{mime: "application/pdf", extension: "pdf", weight: 0.15, sizeMin: 40_000, sizeMax: 15_000_000},
	{mime: "text/plain", extension: "txt", weight: 0.08, sizeMin: 500, sizeMax: 250_000},
	{mime: "text/markdown", extension: "md", weight: 0.05, sizeMin: 500, sizeMax: 400_000},
	{mime: "video/mp4", extension: "mp4", weight: 0.12, sizeMin: 3_000_000, sizeMax: 250_000_000},
	{mime: "audio/mpeg", extension: "mp3", weight: 0.08, sizeMin: 800_000, sizeMax: 40_000_000},
	{mime: "application/zip", extension: "zip", weight: 0.05, sizeMin: 1_000_000, sizeMax: 80_000_000},
	{mime: "application/octet-stream", extension: "bin", weight: 0.05, sizeMin: 100_000, sizeMax: 20_000_000},
}

var rootFolders = []string{"Projects", "Photos", "Videos", "Audio", "Archive", "Docs"}

var subFolders = []string{"2021", "2022", "2023", "2024", "Client", "Personal", "Exports", "Raw"}

var fileStems = []string{
	"roadmap", "contract", "invoice", "portrait", "landscape",
	"notes", "meeting", "draft", "concept", "sample",
}

var ownerPool = []string{
	"alex@example.com", "blake@example.com", "casey@example.com",
	"dana@example.com", "eli@example.com",
}

var authorPool = []string{"Alex Morgan", "Blake Lee", "Casey Park", "Dana Novak", "Eli Santos"}

var tagPool = []string{"work", "personal", "archive", "review", "client", "draft", "export", "reference"}

var descriptionOwners = []string{
	"Imported for testing", "Generated sample", "Synthetic demo asset", "QA validation",
}

var summaryPool = []string{
	"Quarterly report draft.", "Meeting notes and action items.",
	"Scanned document with annotations.", "Creative brief and references.",
}

var docLangPool = []string{"en", "sv", "es", "de"}

var isoPool = []int64{100, 200, 400, 800, 1600}

// assetSpec is the deterministic identity and file shape generated for
// one scan index.
type assetSpec struct {
	externalID   string
	canonicalURI string
	fileName     string
	filePath     string
	fileSize     int64
	fileType     string
	extension    string
}

func pickWeighted(rng *rand.Rand, items []mimeEntry) mimeEntry {
	total := 0.0
	for _, it := range items {
		total += it.weight
	}
	needle := rng.Float64() * total
	acc := 0.0
	for _, it := range items {
		acc += it.weight
		if needle <= acc {
			return it
		}
	}
	return items[len(items)-1]
}

func generateAssetSpec(rng *rand.Rand, actorID int64, index int, hiddenPathRatio float64) assetSpec {
	entry := pickWeighted(rng, mimeTypes)

	baseDir := rootFolders[rng.Intn(len(rootFolders))]
	subdirCount := rng.Intn(3)
	parts := []string{"fake", baseDir}
	for i := 0; i < subdirCount; i++ {
		parts = append(parts, subFolders[rng.Intn(len(subFolders))])
	}

	fileName := fmt.Sprintf("%s-%05d.%s", fileStems[rng.Intn(len(fileStems))], index, entry.extension)
	if hiddenPathRatio > 0 && rng.Float64() < hiddenPathRatio {
		switch rng.Intn(3) {
		case 0:
			parts = append(parts, ".hidden")
		case 1:
			fileName = "." + fileName
		default:
			fileName = "~$" + fileName
		}
	}
	parts = append(parts, fileName)
	filePath := "/" + strings.Join(parts, "/")

	size := entry.sizeMin + int64(rng.Int63n(max64(1, entry.sizeMax-entry.sizeMin)))
	externalID := fmt.Sprintf("fake:%d:%06d", actorID, index)
	canonicalURI := fmt.Sprintf("fake://%d/%d?size=%d", actorID, index, size)

	return assetSpec{
		externalID: externalID, canonicalURI: canonicalURI,
		fileName: fileName, filePath: filePath,
		fileSize: size, fileType: entry.mime, extension: entry.extension,
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func parseFakeSize(uri string) (int64, bool) {
	if !strings.HasPrefix(uri, "fake://") {
		return 0, false
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return 0, false
	}
	raw := parsed.Query().Get("size")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func randomDatetime(rng *rand.Rand, daysBack int) time.Time {
	now := time.Now().UTC()
	delta := rng.Intn(max(1, daysBack))
	secs := rng.Intn(86400)
	return now.Add(-time.Duration(delta)*24*time.Hour - time.Duration(secs)*time.Second)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sharedWith(rng *rand.Rand) []string {
	count := rng.Intn(4)
	if count == 0 {
		return nil
	}
	idx := rng.Perm(len(ownerPool))[:count]
	out := make([]string, count)
	for i, j := range idx {
		out[i] = ownerPool[j]
	}
	return out
}

func tagsForType(rng *rand.Rand, mimeType string) []string {
	n := 1 + rng.Intn(4)
	idx := rng.Perm(len(tagPool))[:n]
	set := make(map[string]bool, n+1)
	for _, j := range idx {
		set[tagPool[j]] = true
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		set["photo"] = true
	case strings.HasPrefix(mimeType, "video/"):
		set["video"] = true
	case strings.HasPrefix(mimeType, "audio/"):
		set["audio"] = true
	}
	if strings.Contains(mimeType, "pdf") {
		set["pdf"] = true
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	return out
}

func fakeIDPath(rng *rand.Rand, index int) []string {
	return []string{
		fmt.Sprintf("fake-%d", index),
		fmt.Sprintf("folder-%d", 1+rng.Intn(50)),
		fmt.Sprintf("root-%d", 1+rng.Intn(5)),
	}
}

func fakeHash(rng *rand.Rand, prefix string) string {
	return fmt.Sprintf("%s-%012x", prefix, rng.Int63n(1<<48))
}

func fakeMinhash(rng *rand.Rand) []int64 {
	out := make([]int64, 16)
	for i := range out {
		out[i] = rng.Int63n(1 << 32)
	}
	return out
}

func titleFromName(fileName string) string {
	base := fileName
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		base = fileName[:i]
	}
	base = strings.ReplaceAll(base, "-", " ")
	return strings.Title(base)
}

func makeDescription(rng *rand.Rand, spec assetSpec) string {
	return fmt.Sprintf("Synthetic %s asset in %s", strings.ToUpper(spec.extension), rootFolders[rng.Intn(len(rootFolders))])
}

func makeComment(rng *rand.Rand) string {
	return descriptionOwners[rng.Intn(len(descriptionOwners))]
}

func makeSummary(rng *rand.Rand) string {
	return summaryPool[rng.Intn(len(summaryPool))]
}

func downloadURI(spec assetSpec) string {
	return fmt.Sprintf("https://assets.example.com/%s/%s", spec.externalID, spec.fileName)
}
