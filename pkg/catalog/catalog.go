// Package catalog implements the textual catalog format that describes a
// disc: the system area file, the volume metadata, and the filesystem tree
// with optional fixed start LBNs.
//
// The format is line oriented:
//
//	system_area {
//	  file "LICENSE.SYS"
//	}
//
//	volume {
//	  system_id [PLAYSTATION]
//	  volume_id [EXAMPLE]
//	  creation_date 1999-01-01 00:00:00.00 0
//	  default_uid 0
//	}
//
//	dir {
//	  file SYSTEM.CNF @23
//	  xafile MOVIE.STR @2000
//	  dir DATA @500 {
//	    file LEVEL1.DAT
//	  }
//	}
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/psxtools/psx-kit/pkg/iso9660/encoding"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
	"github.com/psxtools/psx-kit/pkg/iso9660/validation"
	"github.com/psxtools/psx-kit/pkg/iso9660/volume"
)

// Catalog is the parsed content of a catalog file.
type Catalog struct {
	// SystemAreaFile names the file holding the system area data, empty if
	// none was specified.
	SystemAreaFile string

	// Volume holds the descriptive volume metadata.
	Volume volume.Metadata

	// Root is the root of the filesystem tree, nil if the catalog has no
	// root directory section.
	Root *fstree.Node
}

// ParseFile parses a catalog file. File entries are resolved relative to
// fsBase.
func ParseFile(path, fsBase string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog file %s: %w", path, err)
	}
	defer f.Close()

	cat, err := Parse(f, fsBase)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return cat, nil
}

type parser struct {
	scanner *bufio.Scanner
	fsBase  string
}

// nextLine returns the next non-empty line with surrounding whitespace
// stripped, or "" at end of input.
func (p *parser) nextLine() string {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line != "" {
			return line
		}
	}
	return ""
}

// Parse parses catalog text. File entries are resolved relative to fsBase.
func Parse(r io.Reader, fsBase string) (*Catalog, error) {
	p := &parser{scanner: bufio.NewScanner(r), fsBase: fsBase}
	cat := &Catalog{Volume: volume.NewMetadata()}

	for {
		line := p.nextLine()
		if line == "" {
			break
		}

		switch {
		case matchSectionStart(line, "system_area"):
			if err := p.parseSystemArea(cat); err != nil {
				return nil, err
			}
		case matchSectionStart(line, "volume"):
			if err := p.parseVolume(cat); err != nil {
				return nil, err
			}
		case matchSectionStart(line, "dir"):
			if cat.Root != nil {
				return nil, fmt.Errorf("more than one root directory section in catalog file")
			}
			root := fstree.NewDirectory("", p.fsBase, nil, 0)
			if err := p.parseDir(root); err != nil {
				return nil, err
			}
			cat.Root = root
		default:
			return nil, fmt.Errorf("syntax error in catalog file: %q unrecognized", line)
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}
	return cat, nil
}

// matchSectionStart reports whether line opens the named brace-delimited
// section.
func matchSectionStart(line, keyword string) bool {
	rest, ok := strings.CutPrefix(line, keyword)
	if !ok {
		return false
	}
	return strings.TrimSpace(rest) == "{"
}

func (p *parser) parseSystemArea(cat *Catalog) error {
	for {
		line := p.nextLine()
		if line == "" {
			return fmt.Errorf("syntax error in catalog file: unterminated system_area section")
		}
		if line == "}" {
			return nil
		}

		value, ok := matchQuotedValue(line, "file")
		if !ok {
			return fmt.Errorf("syntax error in catalog file: %q unrecognized in system_area section", line)
		}
		cat.SystemAreaFile = value
	}
}

// matchQuotedValue matches `keyword "value"` and returns the unquoted value.
func matchQuotedValue(line, keyword string) (string, bool) {
	rest, ok := strings.CutPrefix(line, keyword)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

// matchBracketedValue matches `keyword [value]` and returns the value.
func matchBracketedValue(line, keyword string) (string, bool) {
	rest, ok := strings.CutPrefix(line, keyword)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '[' || rest[len(rest)-1] != ']' {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

func (p *parser) parseVolume(cat *Catalog) error {
	identifiers := map[string]*string{
		"system_id":             &cat.Volume.SystemIdentifier,
		"volume_id":             &cat.Volume.VolumeIdentifier,
		"volume_set_id":         &cat.Volume.VolumeSetIdentifier,
		"publisher_id":          &cat.Volume.PublisherIdentifier,
		"preparer_id":           &cat.Volume.DataPreparerIdentifier,
		"application_id":        &cat.Volume.ApplicationIdentifier,
		"copyright_file_id":     &cat.Volume.CopyrightFileIdentifier,
		"abstract_file_id":      &cat.Volume.AbstractFileIdentifier,
		"bibliographic_file_id": &cat.Volume.BibliographicFileID,
	}
	dates := map[string]*encoding.LongDateTime{
		"creation_date":     &cat.Volume.CreationDate,
		"modification_date": &cat.Volume.ModificationDate,
		"expiration_date":   &cat.Volume.ExpirationDate,
		"effective_date":    &cat.Volume.EffectiveDate,
	}
	ids := map[string]*uint16{
		"default_uid": &cat.Volume.DefaultUID,
		"default_gid": &cat.Volume.DefaultGID,
	}

	for {
		line := p.nextLine()
		if line == "" {
			return fmt.Errorf("syntax error in catalog file: unterminated volume section")
		}
		if line == "}" {
			if err := cat.Volume.Validate(); err != nil {
				return err
			}
			return nil
		}

		keyword, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if target, ok := identifiers[keyword]; ok {
			value, ok := matchBracketedValue(line, keyword)
			if !ok {
				return fmt.Errorf("syntax error in catalog file: %q unrecognized in volume section", line)
			}
			*target = value
			continue
		}

		if target, ok := dates[keyword]; ok {
			date, err := encoding.ParseLongDateTime(rest)
			if err != nil {
				return err
			}
			*target = date
			continue
		}

		if target, ok := ids[keyword]; ok {
			value, err := strconv.ParseUint(rest, 10, 16)
			if err != nil {
				return fmt.Errorf("'%s' is not a valid %s value", rest, keyword)
			}
			*target = uint16(value)
			continue
		}

		return fmt.Errorf("syntax error in catalog file: %q unrecognized in volume section", line)
	}
}

// parseEntrySpec splits "NAME" or "NAME @LBN" into the name and the LBN.
func parseEntrySpec(spec string) (name string, lbn uint32, err error) {
	name, lbnSpec, found := strings.Cut(spec, "@")
	name = strings.TrimSpace(name)
	if !found {
		return name, 0, nil
	}

	lbnSpec = strings.TrimSpace(lbnSpec)
	value, err := strconv.ParseUint(lbnSpec, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid start LBN '%s' specified for '%s'", lbnSpec, name)
	}
	if err := validation.ValidateLBN(uint32(value), name); err != nil {
		return "", 0, err
	}
	return name, uint32(value), nil
}

func (p *parser) parseDir(dir *fstree.Node) error {
	for {
		line := p.nextLine()
		if line == "" {
			return fmt.Errorf("syntax error in catalog file: unterminated directory section %q", dir.Name)
		}
		if line == "}" {
			return nil
		}

		switch {
		case strings.HasPrefix(line, "dir "):
			spec := strings.TrimSpace(strings.TrimPrefix(line, "dir "))
			spec, ok := strings.CutSuffix(spec, "{")
			if !ok {
				return fmt.Errorf("syntax error in catalog file: %q unrecognized in directory section", line)
			}
			name, lbn, err := parseEntrySpec(strings.TrimSpace(spec))
			if err != nil {
				return err
			}
			if err := validation.ValidateDCharacters(name, "directory name"); err != nil {
				return err
			}
			subDir := fstree.NewDirectory(name, filepath.Join(dir.HostPath, name), dir, lbn)
			if err := p.parseDir(subDir); err != nil {
				return err
			}

		case strings.HasPrefix(line, "xafile "):
			if err := p.addFile(dir, strings.TrimPrefix(line, "xafile "), true); err != nil {
				return err
			}

		case strings.HasPrefix(line, "file "):
			if err := p.addFile(dir, strings.TrimPrefix(line, "file "), false); err != nil {
				return err
			}

		default:
			return fmt.Errorf("syntax error in catalog file: %q unrecognized in directory section", line)
		}
	}
}

func (p *parser) addFile(dir *fstree.Node, spec string, isForm2 bool) error {
	name, lbn, err := parseEntrySpec(strings.TrimSpace(spec))
	if err != nil {
		return err
	}
	if err := validation.ValidateFileName(name, "file name"); err != nil {
		return err
	}

	// On disc the name carries the ";1" version suffix; the host file does
	// not.
	_, err = fstree.NewFile(name+";1", filepath.Join(dir.HostPath, name), dir, lbn, isForm2)
	return err
}
