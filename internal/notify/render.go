// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify renders and delivers account emails and SMS messages.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateOTPCode       = "otp_code"
	TemplateVerifyAccount = "verify_account"
)

// EmailData is the data every template sees.
type EmailData struct {
	Subject     string
	Preheader   string
	ProductName string
	Email       string
	Name        string
	TenantName  string
	Year        int

	Code          string
	ExpiryMinutes int

	Link        string
	ExpiryHours int
}

// Renderer holds one parsed template per name, each layered on base.html.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	base, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("read base template: %w", err)
	}

	for _, name := range []string{TemplateOTPCode, TemplateVerifyAccount} {
		content, err := templateFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tmpl, err := template.New("email").Parse(string(base))
		if err != nil {
			return nil, fmt.Errorf("parse base template for %s: %w", name, err)
		}
		if _, err := tmpl.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data *EmailData) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	if data.ExpiryMinutes == 0 {
		data.ExpiryMinutes = 10
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
