package deploy

import "path"

// processPaths lays out the per-process filesystem tree:
// <base>/pm2-processes/<name>/{current,venv,logs}.
type processPaths struct {
	processDir string
	currentDir string
	venvDir    string
	logsDir    string
}

func newProcessPaths(baseDir, name string) processPaths {
	processDir := path.Join(baseDir, "pm2-processes", name)
	return processPaths{
		processDir: processDir,
		currentDir: path.Join(processDir, "current"),
		venvDir:    path.Join(processDir, "venv"),
		logsDir:    path.Join(processDir, "logs"),
	}
}
