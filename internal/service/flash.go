package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sshcollectorpro/flashops/internal/model"
)

// flash 扫描消息
const (
	msgScanFound    = "scanning flash success and file found"
	msgScanNotFound = "scanning flash success and file not found"
	msgScanSkipped  = "scanning flash success and file searching skipped"
	msgScanFailed   = "scanning flash failed. Error: "
)

// 文件行固定列位置：名称在第 9 列，大小在第 3 列。
// 依赖 IOS 风格的 dir 输出布局，列数不同的方言会解析错位。
const (
	rowMinFields = 8
	rowNameIndex = 8
	rowSizeIndex = 2
)

// listingRule 目录列表的一条行分类规则，按顺序匹配，命中即停止
type listingRule struct {
	name  string
	match func(line string, fields []string) bool
	apply func(r *model.FlashReport, line string, fields []string) error
}

var listingRules = []listingRule{
	{
		name:  "directory",
		match: func(line string, _ []string) bool { return strings.Contains(strings.ToLower(line), "directory") },
		apply: func(r *model.FlashReport, line string, _ []string) error {
			_, after, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("directory line without colon: %q", line)
			}
			r.Directory = strings.TrimSpace(after)
			return nil
		},
	},
	{
		name:  "capacity",
		match: func(line string, _ []string) bool { return strings.Contains(strings.ToLower(line), "bytes total") },
		apply: func(r *model.FlashReport, line string, fields []string) error {
			r.Capacity = fields[0]
			open := strings.Index(line, "(")
			if open < 0 {
				return fmt.Errorf("capacity line without free bytes: %q", line)
			}
			inner := strings.TrimSpace(line[open+1:])
			if sp := strings.IndexAny(inner, " )"); sp >= 0 {
				inner = inner[:sp]
			}
			r.Free = inner
			return nil
		},
	},
	{
		name:  "file",
		match: func(_ string, fields []string) bool { return len(fields) >= rowMinFields },
		apply: func(r *model.FlashReport, line string, fields []string) error {
			if len(fields) <= rowNameIndex {
				return fmt.Errorf("file row has %d columns, name column missing: %q", len(fields), line)
			}
			r.Files = append(r.Files, model.FileEntry{
				Name: strings.TrimSpace(fields[rowNameIndex]),
				Size: fields[rowSizeIndex],
			})
			return nil
		},
	},
	{
		name:  "unknown",
		match: func(string, []string) bool { return true },
		apply: func(r *model.FlashReport, line string, _ []string) error {
			r.Unknown = line
			return nil
		},
	},
}

// ParseListing 解析目录列表文本；出错时仍返回已解析的部分
func ParseListing(raw, device, flashID string, target model.SearchTarget) (*model.FlashReport, error) {
	report := &model.FlashReport{
		Device: device,
		Flash:  flashID,
		Files:  []model.FileEntry{},
		Status: model.ParseOK,
	}

	lines := 0
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		fields := strings.Fields(line)
		for _, rule := range listingRules {
			if !rule.match(line, fields) {
				continue
			}
			if err := rule.apply(report, line, fields); err != nil {
				report.ParseErrors = append(report.ParseErrors, err.Error())
			}
			break
		}
	}

	report.Search = search(report, target)

	switch {
	case lines == 0:
		report.Status = model.ParseEmptyResponse
		return report, &ParseError{Err: ErrEmptyListing}
	case len(report.ParseErrors) > 0:
		report.Status = model.ParseMalformed
		return report, &ParseError{Err: ErrMalformedListing, Detail: strings.Join(report.ParseErrors, "; ")}
	case len(report.Files) == 0:
		report.Status = model.ParseNoFiles
		return report, &ParseError{Err: ErrNoFileRows}
	}
	return report, nil
}

// search skip/clean 不遍历文件；其余按列表顺序首个精确匹配
func search(r *model.FlashReport, target model.SearchTarget) *model.SearchResult {
	res := &model.SearchResult{Searching: target.Label()}
	if target.Kind != model.SearchFile {
		res.Skipped = true
		return res
	}
	name := strings.TrimSpace(target.Name)
	for _, f := range r.Files {
		if f.Name == name {
			res.Found = true
			res.Size = f.Size
			break
		}
	}
	return res
}

// ListFlash 列出 flash 内容并搜索文件
func ListFlash(ctx context.Context, s DeviceSession, flashID string, target model.SearchTarget) (*model.FlashReport, string, bool) {
	cmd := s.Dialect().ListCommand(flashID)
	out, err := s.SendCommand(ctx, cmd)
	if err != nil {
		report, _ := ParseListing(out, s.Address(), flashID, target)
		return report, msgScanFailed + failureDetail(err), false
	}

	report, err := ParseListing(out, s.Address(), flashID, target)
	if err != nil {
		return report, msgScanFailed + err.Error(), false
	}
	switch {
	case report.Search.Skipped:
		return report, msgScanSkipped, true
	case report.Search.Found:
		return report, msgScanFound, true
	}
	return report, msgScanNotFound, true
}
