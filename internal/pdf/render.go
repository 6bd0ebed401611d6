package pdf

import (
	"bytes"
	"fmt"
	"html/template"

	"craftcv/internal/designer"
	"craftcv/internal/resume"
)

// Branding 是组织的品牌设置。
type Branding struct {
	LogoURL        string
	PrimaryColor   string
	SecondaryColor string
	Font           string
}

// Document 是渲染一份品牌化简历所需的全部输入。
type Document struct {
	Layout   designer.Layout
	Sections []designer.Section
	CV       resume.Parsed
	Branding Branding
}

// block 是页面中的一行：要么是一个通栏区块，要么是左右两栏。
type block struct {
	Full  *designer.Section
	Left  []designer.Section
	Right []designer.Section
}

type pageData struct {
	Blocks   []block
	CV       resume.Parsed
	Branding Branding
}

type sectionData struct {
	Section designer.Section
	Page    pageData
}

var cvTemplate = template.Must(template.New("cv").Funcs(template.FuncMap{
	"pair": pairSection,
}).Parse(cvTemplateString))

func pairSection(section any, page pageData) (sectionData, error) {
	switch s := section.(type) {
	case designer.Section:
		return sectionData{Section: s, Page: page}, nil
	case *designer.Section:
		return sectionData{Section: *s, Page: page}, nil
	default:
		return sectionData{}, fmt.Errorf("unexpected section %T", section)
	}
}

// RenderHTML 按模板区块顺序把简历渲染成 HTML。
// 两栏布局中，相邻的左右栏区块合并为一行，通栏区块单独成行。
func RenderHTML(doc Document) (string, error) {
	doc.CV.Normalize()
	data := pageData{
		Blocks:   buildBlocks(doc.Layout, doc.Sections),
		CV:       doc.CV,
		Branding: withBrandingDefaults(doc.Branding),
	}

	var buf bytes.Buffer
	if err := cvTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render cv html: %w", err)
	}
	return buf.String(), nil
}

func buildBlocks(layout designer.Layout, sections []designer.Section) []block {
	var blocks []block
	var current *block
	for i := range sections {
		s := sections[i]
		if layout != designer.LayoutTwoColumn || s.Column == designer.ColumnFull {
			current = nil
			blocks = append(blocks, block{Full: &s})
			continue
		}
		if current == nil {
			blocks = append(blocks, block{})
			current = &blocks[len(blocks)-1]
		}
		if s.Column == designer.ColumnLeft {
			current.Left = append(current.Left, s)
		} else {
			current.Right = append(current.Right, s)
		}
	}
	return blocks
}

func withBrandingDefaults(b Branding) Branding {
	if b.PrimaryColor == "" {
		b.PrimaryColor = "#2563eb"
	}
	if b.SecondaryColor == "" {
		b.SecondaryColor = "#1e40af"
	}
	if b.Font == "" {
		b.Font = "Inter"
	}
	return b
}

const cvTemplateString = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
  :root {
    --primary-color: {{.Branding.PrimaryColor}};
    --secondary-color: {{.Branding.SecondaryColor}};
  }
  @page { size: A4; margin: 0; }
  body { font-family: "{{.Branding.Font}}", system-ui, sans-serif; margin: 0; padding: 0; }
  .page { width: 210mm; min-height: 297mm; padding: 20mm; box-sizing: border-box; }
  .row { display: flex; gap: 8mm; }
  .col-left { flex: 1; }
  .col-right { flex: 2; }
  h1 { color: var(--primary-color); margin: 0; }
  h2 { color: var(--secondary-color); border-bottom: 1px solid var(--secondary-color); }
  .logo { max-height: 18mm; }
</style>
</head>
<body>
<div class="page">
{{- range .Blocks}}
  {{- if .Full}}
  <div class="row"><div class="col-full">{{template "section" (pair .Full $)}}</div></div>
  {{- else}}
  <div class="row">
    <div class="col-left">{{range .Left}}{{template "section" (pair . $)}}{{end}}</div>
    <div class="col-right">{{range .Right}}{{template "section" (pair . $)}}{{end}}</div>
  </div>
  {{- end}}
{{- end}}
</div>
</body>
</html>
{{define "section"}}{{$s := .Section}}{{$cv := .Page.CV}}
<section class="section section-{{$s.Type}}" data-section-id="{{$s.ID}}">
{{- if eq (print $s.Type) "header"}}
  {{if .Page.Branding.LogoURL}}<img class="logo" src="{{.Page.Branding.LogoURL}}">{{end}}
  <h1>{{$cv.PersonalInfo.Name}}</h1>
{{- else if eq (print $s.Type) "personal-info"}}
  <h2>{{$s.Title}}</h2>
  <ul>
    {{if $cv.PersonalInfo.Email}}<li>{{$cv.PersonalInfo.Email}}</li>{{end}}
    {{if $cv.PersonalInfo.Phone}}<li>{{$cv.PersonalInfo.Phone}}</li>{{end}}
    {{if $cv.PersonalInfo.Location}}<li>{{$cv.PersonalInfo.Location}}</li>{{end}}
  </ul>
{{- else if eq (print $s.Type) "summary"}}
  <h2>{{$s.Title}}</h2>
  <p>{{$cv.Summary}}</p>
{{- else if eq (print $s.Type) "experience"}}
  <h2>{{$s.Title}}</h2>
  {{range $cv.WorkExperience}}
  <div class="entry">
    <strong>{{.Position}}</strong> · {{.Company}} <span class="dates">{{.Dates}}</span>
    <ul>{{range .Responsibilities}}<li>{{.}}</li>{{end}}</ul>
  </div>
  {{end}}
{{- else if eq (print $s.Type) "education"}}
  <h2>{{$s.Title}}</h2>
  {{range $cv.Education}}
  <div class="entry"><strong>{{.Degree}}</strong> · {{.Institution}} <span class="dates">{{.Dates}}</span></div>
  {{end}}
{{- else if eq (print $s.Type) "skills"}}
  <h2>{{$s.Title}}</h2>
  <ul>{{range $cv.Skills}}<li>{{.}}</li>{{end}}</ul>
{{- else if eq (print $s.Type) "certifications"}}
  <h2>{{$s.Title}}</h2>
  <ul>{{range $cv.Certifications}}<li>{{.}}</li>{{end}}</ul>
{{- else if eq (print $s.Type) "footer"}}
  <footer>{{$cv.PersonalInfo.Name}}</footer>
{{- end}}
</section>
{{end}}`
