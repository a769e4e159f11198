package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Manager starts (or attaches to) the map server and reports progress to the window.
type Manager struct {
	logFunc    func(string)
	termFunc   func(string)
	appFunc    func(string)
	serverAddr string
	configPath string

	mu        sync.Mutex
	serverCmd *exec.Cmd

	readyTimeout time.Duration
	pollInterval time.Duration
}

func NewManager(log, term, app func(string), serverAddr, configPath string) *Manager {
	return &Manager{
		logFunc:      log,
		termFunc:     term,
		appFunc:      app,
		serverAddr:   serverAddr,
		configPath:   configPath,
		readyTimeout: 30 * time.Second,
		pollInterval: time.Second,
	}
}

func (m *Manager) log(msg string) {
	if m.logFunc != nil {
		m.logFunc(msg)
	}
}

func (m *Manager) term(name string) {
	if m.termFunc != nil {
		m.termFunc(name)
	}
}

// Stop asks a server we started to shut down. Servers we merely attached to keep running.
func (m *Manager) Stop() {
	m.mu.Lock()
	cmd := m.serverCmd
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	fmt.Println("> Closing: Sending shutdown signal to server...")
	url := fmt.Sprintf("http://%s/api/shutdown", m.resolveAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("> API shutdown failed: %v\n", err)
		_ = cmd.Process.Kill()
		return
	}
	resp.Body.Close()
	fmt.Println("> Shutdown command sent successfully.")
	time.Sleep(500 * time.Millisecond)
}

// Start runs the startup sequence in the background.
func (m *Manager) Start() {
	go m.startup()
}

func (m *Manager) startup() {
	// 1. Config
	if !m.checkPrerequisites() {
		m.term(serverBinary())
		m.log("> Config missing. Generating defaults...")
		if err := m.runWithOutput(exec.Command(serverPath(), "--init-config", "--config", m.configPath)); err != nil {
			m.log(fmt.Sprintf("> Config generation failed: %v", err))
			return
		}
		m.log("> Config generated.")
	}

	// 2. Server
	m.term(serverBinary())
	if !m.isServerReady() {
		m.log(fmt.Sprintf("> Server not running. Starting %s...", serverBinary()))
		go m.runServer()
	} else {
		m.log("> Server already active.")
		m.term("server.log")
		go m.tailServerLog("logs/server.log")
	}

	// 3. Readiness
	m.log("> Waiting for server...")
	if m.waitReady() {
		m.log("> Server ready!")
		if m.appFunc != nil {
			m.appFunc(fmt.Sprintf("http://%s", m.resolveAddr()))
		}
		return
	}
	m.log("> Error: Server timed out.")
}

func (m *Manager) waitReady() bool {
	deadline := time.Now().Add(m.readyTimeout)
	for time.Now().Before(deadline) {
		if m.isServerReady() {
			return true
		}
		time.Sleep(m.pollInterval)
	}
	return false
}

func (m *Manager) checkPrerequisites() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

func serverBinary() string {
	if runtime.GOOS == "windows" {
		return "inatmap.exe"
	}
	return "inatmap"
}

func serverPath() string {
	return "." + string(os.PathSeparator) + serverBinary()
}

func (m *Manager) runServer() {
	cmd := exec.Command(serverPath(), "--config", m.configPath)
	m.mu.Lock()
	m.serverCmd = cmd
	m.mu.Unlock()
	if err := m.runWithOutput(cmd); err != nil {
		m.log(fmt.Sprintf("Server exited with error: %v", err))
	}
}

func (m *Manager) runWithOutput(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	go m.streamReader(stdout)
	go m.streamReader(stderr)

	return cmd.Wait()
}

func (m *Manager) tailServerLog(path string) {
	file, err := os.Open(path)
	if err != nil {
		m.log(fmt.Sprintf("Could not open log file: %v", err))
		return
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		m.log(fmt.Sprintf("Could not seek log file: %v", err))
		return
	}
	reader := bufio.NewReader(file)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(500 * time.Millisecond)
				continue
			}
			break
		}
		m.log(strings.TrimSpace(line))
	}
}

func (m *Manager) streamReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.log(scanner.Text())
	}
}

// resolveAddr pins localhost to IPv4 to avoid resolution issues.
func (m *Manager) resolveAddr() string {
	addr := m.serverAddr
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	if strings.HasPrefix(addr, "localhost:") {
		return strings.Replace(addr, "localhost:", "127.0.0.1:", 1)
	}
	return addr
}

func (m *Manager) isServerReady() bool {
	client := http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", m.resolveAddr()))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
