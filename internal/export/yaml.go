// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/secchat/internal/model"
)

// YAMLExporter exports conversations to YAML using the snake_case field
// names declared on the model types.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter. Nil options keep everything.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	return &YAMLExporter{options: opts}
}

// Export converts a conversation to YAML format.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(dataView(conv, e.options)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
