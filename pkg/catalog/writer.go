package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
)

// WriteOptions controls catalog serialization.
type WriteOptions struct {
	// WriteLBNs records the start LBN of every entry so that a rebuilt image
	// reproduces the original layout.
	WriteLBNs bool
}

// Write serializes the catalog in the textual format accepted by Parse.
// Directory children are written in declaration order.
func (c *Catalog) Write(w io.Writer, opts WriteOptions) error {
	if c.SystemAreaFile != "" {
		if _, err := fmt.Fprintf(w, "system_area {\n  file %q\n}\n\n", c.SystemAreaFile); err != nil {
			return err
		}
	}

	if err := c.writeVolume(w); err != nil {
		return err
	}

	if c.Root != nil {
		if err := writeDir(w, c.Root, 0, opts); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) writeVolume(w io.Writer) error {
	v := &c.Volume
	identifiers := []struct {
		key   string
		value string
	}{
		{"system_id", v.SystemIdentifier},
		{"volume_id", v.VolumeIdentifier},
		{"volume_set_id", v.VolumeSetIdentifier},
		{"publisher_id", v.PublisherIdentifier},
		{"preparer_id", v.DataPreparerIdentifier},
		{"application_id", v.ApplicationIdentifier},
		{"copyright_file_id", v.CopyrightFileIdentifier},
		{"abstract_file_id", v.AbstractFileIdentifier},
		{"bibliographic_file_id", v.BibliographicFileID},
	}

	if _, err := fmt.Fprintf(w, "volume {\n"); err != nil {
		return err
	}
	for _, id := range identifiers {
		if _, err := fmt.Fprintf(w, "  %s [%s]\n", id.key, id.value); err != nil {
			return err
		}
	}

	dates := []struct {
		key   string
		value string
	}{
		{"creation_date", v.CreationDate.String()},
		{"modification_date", v.ModificationDate.String()},
		{"expiration_date", v.ExpirationDate.String()},
		{"effective_date", v.EffectiveDate.String()},
	}
	for _, date := range dates {
		if _, err := fmt.Fprintf(w, "  %s %s\n", date.key, date.value); err != nil {
			return err
		}
	}

	if v.DefaultUID != 0 {
		if _, err := fmt.Fprintf(w, "  default_uid %d\n", v.DefaultUID); err != nil {
			return err
		}
	}
	if v.DefaultGID != 0 {
		if _, err := fmt.Fprintf(w, "  default_gid %d\n", v.DefaultGID); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "}\n\n")
	return err
}

func writeDir(w io.Writer, dir *fstree.Node, level int, opts WriteOptions) error {
	indent := strings.Repeat("  ", level)

	if level == 0 {
		if _, err := fmt.Fprintf(w, "dir {\n"); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintf(w, "%sdir %s%s {\n", indent, dir.Name, lbnSuffix(dir, opts)); err != nil {
			return err
		}
	}

	for _, child := range dir.Children {
		if child.IsDir() {
			if err := writeDir(w, child, level+1, opts); err != nil {
				return err
			}
			continue
		}

		keyword := "file"
		if child.IsForm2 {
			keyword = "xafile"
		}
		name := strings.TrimSuffix(child.Name, ";1")
		if _, err := fmt.Fprintf(w, "%s  %s %s%s\n", indent, keyword, name, lbnSuffix(child, opts)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%s}\n", indent)
	return err
}

func lbnSuffix(node *fstree.Node, opts WriteOptions) string {
	if !opts.WriteLBNs {
		return ""
	}
	return fmt.Sprintf(" @%d", node.FirstSector)
}
