package model

// ParseStatus 目录列表解析状态
type ParseStatus string

const (
	ParseOK            ParseStatus = "ok"
	ParseEmptyResponse ParseStatus = "empty_response"
	ParseNoFiles       ParseStatus = "no_files"
	ParseMalformed     ParseStatus = "malformed"
)

// FileEntry flash 中的一个文件，Size 保留设备原始文本
type FileEntry struct {
	Name string `json:"name"`
	Size string `json:"size"`
}

// SearchResult 文件搜索结果
type SearchResult struct {
	Searching string `json:"searching"`
	Found     bool   `json:"found"`
	Skipped   bool   `json:"skipped"`
	// Size 命中文件的大小（首个匹配）
	Size string `json:"size,omitempty"`
}

// FlashReport flash 扫描报告，解析失败时同样返回已得到的部分
type FlashReport struct {
	Device      string        `json:"device"`
	Flash       string        `json:"flash"`
	Directory   string        `json:"directory"`
	Capacity    string        `json:"capacity"`
	Free        string        `json:"free"`
	Files       []FileEntry   `json:"files"`
	Unknown     string        `json:"unknown,omitempty"`
	Search      *SearchResult `json:"search,omitempty"`
	Status      ParseStatus   `json:"parse_status"`
	ParseErrors []string      `json:"parse_errors,omitempty"`
}

// SizeOf 查找文件大小；同名多条时以最后一条为准
func (r *FlashReport) SizeOf(name string) (string, bool) {
	size, found := "", false
	for _, f := range r.Files {
		if f.Name == name {
			size, found = f.Size, true
		}
	}
	return size, found
}

// Contains 是否存在同名文件（首个匹配即返回）
func (r *FlashReport) Contains(name string) bool {
	for _, f := range r.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}
