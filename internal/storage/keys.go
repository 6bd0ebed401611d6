package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// 对象键布局：
//
//	cvs/<user>/<cv><ext>               上传的原始简历
//	branded-cvs/<user>/<cv>.pdf        品牌化后的 PDF
//	org-assets/<org>/logo-<uuid><ext>  组织 Logo
//	org-assets/<org>/cv-template-...   组织上传的模板文件
const (
	cvPrefix        = "cvs"
	brandedPrefix   = "branded-cvs"
	orgAssetsPrefix = "org-assets"
)

func CVKey(userID uint, cvID, ext string) string {
	return fmt.Sprintf("%s/%d/%s%s", cvPrefix, userID, cvID, normalizeExt(ext))
}

func BrandedCVKey(userID uint, cvID string) string {
	return fmt.Sprintf("%s/%d/%s.pdf", brandedPrefix, userID, cvID)
}

// LogoKey 每次上传生成新键，旧 Logo 由调用方删除。
func LogoKey(orgID uint, ext string) string {
	return fmt.Sprintf("%s/%d/logo-%s%s", orgAssetsPrefix, orgID, uuid.NewString(), normalizeExt(ext))
}

func CVTemplateKey(orgID uint, ext string) string {
	return fmt.Sprintf("%s/%d/cv-template-%s%s", orgAssetsPrefix, orgID, uuid.NewString(), normalizeExt(ext))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
