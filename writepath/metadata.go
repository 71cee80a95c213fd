// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package writepath

import "encoding/json"

// FieldMeta describes one VCF INFO/FORMAT field declaration, the shape
// session.WriteOptions.InfoMetadataJSON/FormatMetadataJSON decode into.
type FieldMeta struct {
	Number      string `json:"number"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func parseFieldMetadata(js string) (map[string]FieldMeta, error) {
	if js == "" {
		return map[string]FieldMeta{}, nil
	}
	var out map[string]FieldMeta
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseStringMap(js string) (map[string]string, error) {
	if js == "" {
		return map[string]string{}, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseSampleNames(js string) ([]string, error) {
	if js == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// vcfFieldMetadata returns a new map holding the vcf.field.* keys a
// VCFWriter's schema override injects for one declared INFO/FORMAT field
// (spec.md §4.10: "vcf.field.number, vcf.field.type, vcf.field.description").
func vcfFieldMetadata(m FieldMeta) map[string]string {
	return map[string]string{
		"vcf.field.number":      m.Number,
		"vcf.field.type":        m.Type,
		"vcf.field.description": m.Description,
	}
}
