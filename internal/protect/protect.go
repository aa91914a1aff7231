// Package protect turns protection settings into standard encryption parameters and
// encrypts or decrypts documents with them.
package protect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

// Permission bits of the standard security handler, numbered from bit 1.
const (
	PermPrint            uint32 = 1 << 2
	PermModify           uint32 = 1 << 3
	PermCopy             uint32 = 1 << 4
	PermAnnotate         uint32 = 1 << 5
	PermFillIn           uint32 = 1 << 8
	PermAccessibility    uint32 = 1 << 9
	PermAssemble         uint32 = 1 << 10
	PermPrintHighQuality uint32 = 1 << 11
)

// Plan holds resolved encryption parameters. UserPassword is nil when the document opens
// without a password.
type Plan struct {
	Permissions   uint32
	UserPassword  []byte
	OwnerPassword []byte
}

// Permissions grants every right whose prevention flag is unset.
func Permissions(s models.ProtectionSettings) uint32 {
	p := PermAccessibility
	if !s.PreventPrinting {
		p |= PermPrint | PermPrintHighQuality
	}
	if !s.PreventCopying {
		p |= PermCopy
	}
	if !s.PreventEditing {
		p |= PermModify | PermAnnotate | PermFillIn | PermAssemble
	}
	return p
}

// NewPlan resolves s. The owner password falls back to the user password; at least one of
// them must be set.
func NewPlan(s models.ProtectionSettings) (Plan, error) {
	user := strings.TrimSpace(s.UserPassword) != ""
	owner := s.OwnerPassword
	if strings.TrimSpace(owner) == "" {
		owner = s.UserPassword
	}
	if strings.TrimSpace(owner) == "" {
		return Plan{}, fmt.Errorf("%w: a user or owner password is required", models.ErrInvalidSettings)
	}
	plan := Plan{Permissions: Permissions(s), OwnerPassword: []byte(owner)}
	if s.RequirePasswordToOpen && user {
		plan.UserPassword = []byte(s.UserPassword)
	}
	return plan, nil
}

// Protector encrypts and decrypts documents through a codec.
type Protector struct {
	codec  pdf.Codec
	logger *slog.Logger
}

// NewProtector returns a Protector. A nil logger uses slog.Default.
func NewProtector(codec pdf.Codec, logger *slog.Logger) *Protector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protector{codec: codec, logger: logger}
}

// Protect writes an encrypted copy of src to dst.
func (p *Protector) Protect(ctx context.Context, src, dst string, s models.ProtectionSettings, report progress.Func) error {
	if report == nil {
		report = progress.Nop
	}
	plan, err := NewPlan(s)
	if err != nil {
		return err
	}
	if err := models.CheckCancelled(ctx); err != nil {
		return err
	}
	report(0)
	doc, err := p.codec.Open(src, "")
	if err != nil {
		return err
	}
	defer doc.Close()

	if err := doc.Encrypt(string(plan.UserPassword), string(plan.OwnerPassword), plan.Permissions); err != nil {
		return fmt.Errorf("failed to set encryption: %w", err)
	}
	if err := doc.Save(dst); err != nil {
		return fmt.Errorf("failed to save protected document: %w", err)
	}
	p.logger.Debug("Protected document.", "input", src, "permissions", plan.Permissions, "openPassword", plan.UserPassword != nil)
	report(100)
	return nil
}

// Unprotect writes a decrypted copy of src to dst. A password that does not match fails with
// ErrBadPassword, as does an empty password on a document that is encrypted but opens
// without one: removing its encryption needs the owner password.
func (p *Protector) Unprotect(ctx context.Context, src, dst, password string, report progress.Func) error {
	if report == nil {
		report = progress.Nop
	}
	if err := models.CheckCancelled(ctx); err != nil {
		return err
	}
	report(0)
	doc, err := p.codec.Open(src, password)
	if err != nil {
		return err
	}
	defer doc.Close()

	if err := doc.Decrypt(); err != nil {
		return err
	}
	if err := doc.Save(dst); err != nil {
		return fmt.Errorf("failed to save unprotected document: %w", err)
	}
	report(100)
	return nil
}
