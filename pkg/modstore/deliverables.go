package modstore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/loomctl/loom/pkg/deliverables"
	"github.com/loomctl/loom/pkg/ops"
)

// EmitDeliverablesManifest writes the update's deliverables manifest under
// artifacts/updates/<update_id>/. A deliverable without a declared checksum
// inherits one from any write_file op in the same update targeting the same
// path, so authoring tools do not have to repeat digests.
func (a *Applier) EmitDeliverablesManifest(u *Update) error {
	checksums := make(map[string]string)
	for _, updateOp := range u.Operations {
		for _, op := range updateOp.Ops {
			if op.Type != ops.KindWriteFile || op.Path == "" {
				continue
			}
			sum := op.ChecksumSHA256
			if sum == "" && op.ContentBase64 != "" {
				if decoded, err := base64.StdEncoding.DecodeString(op.ContentBase64); err == nil {
					sum = ops.HashBytes(decoded)
				}
			}
			if sum != "" {
				checksums[op.Path] = sum
			}
		}
	}

	manifest := deliverables.Manifest{
		UpdateID:     u.UpdateID,
		GeneratedAt:  time.Now().UTC(),
		Deliverables: make([]deliverables.Deliverable, 0, len(u.Deliverables)),
	}
	for _, d := range u.Deliverables {
		if d.ExpectedSHA256 == "" {
			d.ExpectedSHA256 = checksums[d.Path]
		}
		manifest.Deliverables = append(manifest.Deliverables, d)
	}

	dir := filepath.Join(a.root, "artifacts", "updates", u.UpdateID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "deliverables.manifest.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return err
	}
	a.logger.WithField("path", path).
		WithField("deliverables", len(manifest.Deliverables)).
		Debug("deliverables manifest emitted")
	return nil
}
