// Package cardexport builds Cardpresso-compatible snapshots of the member
// roster: a timestamped directory with a SQLite database and the matching
// photo files, ready to be pointed at by the card printing workstation.
package cardexport

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
	"github.com/MLeprich/mitgliederverwaltung/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

const (
	snapshotPrefix    = "cardpresso_"
	snapshotTimestamp = "20060102_150405"
	databaseFileName  = "cardpresso_indexed.sqlite"
	snapshotDateFmt   = "02.01.2006"
)

// The column names are a contract with the card printing software and must
// not be renamed.
const createMembersTable = `
CREATE TABLE members (
	id                INTEGER PRIMARY KEY,
	personalnummer    TEXT,
	vorname           TEXT,
	nachname          TEXT,
	vollname          TEXT,
	geburtsdatum      TEXT,
	ausweisnummer     TEXT,
	kartenprefix      TEXT,
	kartennummer      TEXT,
	ausstellungsdatum TEXT,
	gueltig_bis       TEXT,
	mitgliedertyp     TEXT,
	aktiv             TEXT,
	photo             TEXT
)`

// Exporter writes roster snapshots for the card printing software.
type Exporter struct {
	repo      repository.MemberRepository
	photos    storage.PhotoStore
	outputDir string
	keep      int
}

func NewExporter(repo repository.MemberRepository, photos storage.PhotoStore, cfg config.ExportConfig) *Exporter {
	return &Exporter{
		repo:      repo,
		photos:    photos,
		outputDir: cfg.OutputDir,
		keep:      cfg.KeepCount,
	}
}

// CreateSnapshot writes a new timestamped snapshot directory and returns its
// path. Every member is projected; the aktiv column tells the printing
// station which entries are current.
func (e *Exporter) CreateSnapshot(ctx context.Context) (string, error) {
	members, err := e.repo.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load members: %w", err)
	}

	dir := filepath.Join(e.outputDir, snapshotPrefix+time.Now().Format(snapshotTimestamp))
	dbDir := filepath.Join(dir, "database")
	imgDir := filepath.Join(dir, "images")
	for _, d := range []string{dbDir, imgDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	if err := e.writeDatabase(ctx, filepath.Join(dbDir, databaseFileName), imgDir, members); err != nil {
		// A half-written snapshot must not be left behind where the
		// printing station could pick it up.
		os.RemoveAll(dir)
		return "", err
	}

	logger.Info("Card export snapshot created", "dir", dir, "members", len(members), "active", countActive(members))
	return dir, nil
}

func (e *Exporter) writeDatabase(ctx context.Context, dbPath, imgDir string, members []domain.Member) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open snapshot database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createMembersTable); err != nil {
		return fmt.Errorf("create members table: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO members
		(id, personalnummer, vorname, nachname, vollname, geburtsdatum,
		 ausweisnummer, kartenprefix, kartennummer, ausstellungsdatum,
		 gueltig_bis, mitgliedertyp, aktiv, photo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range members {
		m := &members[i]
		photo, err := e.copyPhoto(m, imgDir)
		if err != nil {
			logger.Warn("Skipping photo in card export", "member_id", m.ID, "error", err)
		}
		aktiv := "NEIN"
		if m.IsActive {
			aktiv = "JA"
		}
		_, err = stmt.ExecContext(ctx,
			m.ID,
			m.PersonnelNumber,
			m.FirstName,
			m.LastName,
			m.FullName(),
			m.BirthDate.Format(snapshotDateFmt),
			m.FullCardNumber(),
			m.CardNumberPrefix,
			m.CardNumber,
			formatDate(m.IssuedDate),
			formatDate(m.ValidUntil),
			m.MemberType.DisplayName(),
			aktiv,
			photo,
		)
		if err != nil {
			return fmt.Errorf("insert member %d: %w", m.ID, err)
		}
	}
	return nil
}

// copyPhoto places the member's photo into the snapshot's images directory,
// named after the printed card number, and returns the photo column value:
// the file's base name without extension. Members without a photo yield an
// empty reference, not an error.
func (e *Exporter) copyPhoto(m *domain.Member, imgDir string) (string, error) {
	if m.PhotoPath == "" {
		return "", nil
	}
	src, err := e.photos.Open(m.PhotoPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	base := m.FullCardNumber()
	dst, err := os.Create(filepath.Join(imgDir, base+".jpg"))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return base, nil
}

// CleanupOld removes all but the newest keep snapshots. The timestamped
// directory names sort chronologically, so lexical order is enough.
func (e *Exporter) CleanupOld() error {
	dirs, err := e.snapshots()
	if err != nil {
		return err
	}
	if e.keep <= 0 || len(dirs) <= e.keep {
		return nil
	}
	for _, d := range dirs[:len(dirs)-e.keep] {
		path := filepath.Join(e.outputDir, d)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove old snapshot %s: %w", path, err)
		}
		logger.Info("Removed old card export snapshot", "dir", path)
	}
	return nil
}

// LatestSnapshot returns the path of the newest snapshot directory, or an
// empty string if none exists.
func (e *Exporter) LatestSnapshot() (string, error) {
	dirs, err := e.snapshots()
	if err != nil || len(dirs) == 0 {
		return "", err
	}
	return filepath.Join(e.outputDir, dirs[len(dirs)-1]), nil
}

// snapshots lists snapshot directory names in ascending (oldest first) order.
func (e *Exporter) snapshots() ([]string, error) {
	entries, err := os.ReadDir(e.outputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read export directory: %w", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), snapshotPrefix) {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(snapshotDateFmt)
}

func countActive(members []domain.Member) int {
	n := 0
	for i := range members {
		if members[i].IsActive {
			n++
		}
	}
	return n
}
