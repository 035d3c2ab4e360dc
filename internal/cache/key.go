package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/factlens/factlens/internal/models"
)

// DeriveKey computes the content fingerprint of a request. It is pure and
// deterministic: two semantically equal requests always derive the same key
// no matter how maps were populated, and any single field difference
// (provider, model, one config value, report kind, file content) changes the
// key. Each component is hashed under its own label so values can never
// collide across fields.
func DeriveKey(req models.ReportRequest) string {
	textHash := hashBytes("text", []byte(req.Text))
	filesHash := hashFiles(req.Attachments)
	configHash := hashConfig(req.Config)

	// Every component is a fixed-width hex digest by the time it reaches the
	// outer hash, so no raw value can smuggle a delimiter across fields.
	h := sha256.New()
	fmt.Fprintf(h, "pv=%s;", hashBytes("pv", []byte(req.PromptVersion)))
	fmt.Fprintf(h, "text=%s;", textHash)
	fmt.Fprintf(h, "files=%s;", filesHash)
	fmt.Fprintf(h, "kind=%s;", hashBytes("kind", []byte(req.ReportKind)))
	fmt.Fprintf(h, "provider=%s;", hashBytes("provider", []byte(req.Provider)))
	fmt.Fprintf(h, "model=%s;", hashBytes("model", []byte(req.ModelID)))
	fmt.Fprintf(h, "config=%s;", configHash)
	return hex.EncodeToString(h.Sum(nil))
}

// hashFiles hashes each attachment's name and content, then combines the
// per-file hashes in sorted order so attachment ordering never affects the
// key.
func hashFiles(files []models.Attachment) string {
	if len(files) == 0 {
		return hashBytes("files", nil)
	}
	hashes := make([]string, 0, len(files))
	for _, f := range files {
		h := sha256.New()
		fmt.Fprintf(h, "name=%s;", hashBytes("name", []byte(f.Name)))
		h.Write(f.Content)
		hashes = append(hashes, hex.EncodeToString(h.Sum(nil)))
	}
	sort.Strings(hashes)

	h := sha256.New()
	for _, fh := range hashes {
		fmt.Fprintf(h, "%s;", fh)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashConfig hashes the flat parameter map sorted by key. Keys and values
// are hashed individually so delimiter characters inside either cannot
// shift an entry boundary.
func hashConfig(config map[string]string) string {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", hashBytes("ck", []byte(k)), hashBytes("cv", []byte(config[k])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashBytes(label string, b []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:", label)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
