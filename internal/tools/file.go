package tools

import (
	"context"
	"os"
	"path/filepath"
)

// maxReadBytes caps read_file output so a tool call cannot balloon a prompt.
const maxReadBytes = 256 * 1024

func registerFileTools(r *Registry) {
	_ = r.Register(&Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Params: map[string]Param{
			"path": {Type: "string", Description: "Path of the file to read"},
		},
		Required: []string{"path"},
		Risk:     RiskLow,
		Func:     readFile,
	})
	_ = r.Register(&Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories",
		Params: map[string]Param{
			"path":    {Type: "string", Description: "Path of the file to write"},
			"content": {Type: "string", Description: "Content to write"},
		},
		Required: []string{"path", "content"},
		Risk:     RiskMedium,
		Func:     writeFile,
	})
	_ = r.Register(&Tool{
		Name:        "stat",
		Description: "Report size, mode and modification time of a path",
		Params: map[string]Param{
			"path": {Type: "string", Description: "Path to inspect"},
		},
		Required: []string{"path"},
		Risk:     RiskLow,
		Func:     statPath,
	})
}

func stringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func readFile(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return Fail("missing required parameter: path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fail("read %s: %v", path, err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return OK(string(data))
}

func writeFile(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return Fail("missing required parameter: path")
	}
	content, ok := args["content"].(string)
	if !ok {
		return Fail("missing required parameter: content")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail("write %s: %v", path, err)
	}
	return OK(map[string]any{"path": path, "bytes": len(content)})
}

func statPath(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return Fail("missing required parameter: path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Fail("stat %s: %v", path, err)
	}
	return OK(map[string]any{
		"path":     path,
		"size":     info.Size(),
		"mode":     info.Mode().String(),
		"mod_time": info.ModTime().UTC(),
		"is_dir":   info.IsDir(),
	})
}
