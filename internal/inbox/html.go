package inbox

import (
	"html"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	stripper  = bluemonday.StrictPolicy()

	// Tables survive conversion: item lists are often sent as HTML tables.
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	blankLines = regexp.MustCompile(`\n{3,}`)
)

// htmlToText renders an HTML body as markdown text for analysis.
func htmlToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	clean := sanitizer.Sanitize(body)

	md, err := mdConverter.ConvertString(clean)
	if err != nil {
		logrus.Warnf("HTML conversion failed, stripping tags: %v", err)
		md = html.UnescapeString(stripper.Sanitize(clean))
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(md, "\n\n"))
}
