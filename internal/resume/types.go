package resume

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parsed 表示解析服务返回、存储在 CV.ParsedData(JSONB) 中的结构化数据。
type Parsed struct {
	PersonalInfo   PersonalInfo `json:"personal_info"`
	Summary        string       `json:"summary"`
	WorkExperience []Experience `json:"work_experience"`
	Education      []Education  `json:"education"`
	Skills         []string     `json:"skills"`
	Certifications []string     `json:"certifications"`
}

// PersonalInfo 是候选人的联系方式。
type PersonalInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// Experience 表示一段工作经历。
type Experience struct {
	Company          string   `json:"company"`
	Position         string   `json:"position"`
	Dates            string   `json:"dates"`
	Responsibilities []string `json:"responsibilities"`
}

// Education 表示一段教育经历。
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Dates       string `json:"dates"`
}

const defaultName = "No Name"

// UnmarshalJSON 兼容解析服务把 personal_info 返回为逗号分隔字符串的情况，
// skills 与 certifications 也可能是单个字符串。
func (p *Parsed) UnmarshalJSON(data []byte) error {
	var raw struct {
		PersonalInfo   json.RawMessage `json:"personal_info"`
		Summary        string          `json:"summary"`
		WorkExperience []Experience    `json:"work_experience"`
		Education      []Education     `json:"education"`
		Skills         json.RawMessage `json:"skills"`
		Certifications json.RawMessage `json:"certifications"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	info, err := decodePersonalInfo(raw.PersonalInfo)
	if err != nil {
		return fmt.Errorf("personal_info: %w", err)
	}
	skills, err := decodeStringList(raw.Skills)
	if err != nil {
		return fmt.Errorf("skills: %w", err)
	}
	certs, err := decodeStringList(raw.Certifications)
	if err != nil {
		return fmt.Errorf("certifications: %w", err)
	}

	*p = Parsed{
		PersonalInfo:   info,
		Summary:        raw.Summary,
		WorkExperience: raw.WorkExperience,
		Education:      raw.Education,
		Skills:         skills,
		Certifications: certs,
	}
	return nil
}

// Normalize 补齐渲染所需的默认值。
func (p *Parsed) Normalize() {
	if strings.TrimSpace(p.PersonalInfo.Name) == "" {
		p.PersonalInfo.Name = defaultName
	}
	if p.WorkExperience == nil {
		p.WorkExperience = []Experience{}
	}
	if p.Education == nil {
		p.Education = []Education{}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Certifications == nil {
		p.Certifications = []string{}
	}
}

func decodePersonalInfo(raw json.RawMessage) (PersonalInfo, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return PersonalInfo{}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return ParsePersonalInfo(text), nil
	}
	var info PersonalInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return PersonalInfo{}, err
	}
	return info, nil
}

func decodeStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, err
	}
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

var knownLocations = []string{"singapore", "usa", "uk", "australia"}

// ParsePersonalInfo 把 "name, email, phone, location" 形式的字符串拆成字段。
func ParsePersonalInfo(text string) PersonalInfo {
	var info PersonalInfo
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case strings.Contains(part, "@"):
			info.Email = part
		case strings.ContainsAny(part, "0123456789"):
			info.Phone = part
		case containsLocation(part):
			info.Location = part
		default:
			info.Name = part
		}
	}
	return info
}

func containsLocation(part string) bool {
	lower := strings.ToLower(part)
	for _, loc := range knownLocations {
		if strings.Contains(lower, loc) {
			return true
		}
	}
	return false
}
