package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

func NewRemoteDeployer(spec *RemoteSpec) *RemoteDeployer {
	return &RemoteDeployer{
		host:    spec.Host,
		user:    spec.User,
		keyPath: spec.KeyPath,
	}
}

// RemoteDeployer runs deploy steps on a remote host over SSH and ships
// artifacts there over SFTP. It satisfies CommandRunner so the deploy
// stage can swap it in for the local runner.
type RemoteDeployer struct {
	host    string
	user    string
	keyPath string

	client *ssh.Client
	mu     sync.Mutex
}

func (rd *RemoteDeployer) connect() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.client != nil {
		return nil
	}

	privateKey, err := os.ReadFile(rd.keyPath)
	if err != nil {
		return fmt.Errorf("reading deploy key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("parsing deploy key: %w", err)
	}
	cc := &ssh.ClientConfig{
		User:            rd.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	host := rd.host
	if !strings.Contains(host, ":") {
		host += ":22"
	}
	client, err := ssh.Dial("tcp", host, cc)
	if err != nil {
		return err
	}
	rd.client = client
	return nil
}

func (rd *RemoteDeployer) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.client == nil {
		return nil
	}
	err := rd.client.Close()
	rd.client = nil
	return err
}

// Upload copies localPath, a file or a directory, into remoteDir.
func (rd *RemoteDeployer) Upload(localPath, remoteDir string) error {
	if err := rd.connect(); err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(rd.client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	target := path.Join(remoteDir, filepath.Base(localPath))
	if info.IsDir() {
		return recursiveUpload(sftpClient, localPath, target)
	}
	return uploadFile(sftpClient, localPath, target)
}

func recursiveUpload(sftpClient *sftp.Client, localPath, remotePath string) error {
	if err := sftpClient.MkdirAll(remotePath); err != nil {
		return err
	}

	entries, err := os.ReadDir(localPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		localFilePath := filepath.Join(localPath, entry.Name())
		remoteFilePath := path.Join(remotePath, entry.Name())

		if entry.IsDir() {
			if err := recursiveUpload(
				sftpClient, localFilePath, remoteFilePath,
			); err != nil {
				return err
			}
		} else {
			if err := uploadFile(
				sftpClient, localFilePath, remoteFilePath,
			); err != nil {
				return err
			}
		}
	}

	return nil
}

func uploadFile(sftpClient *sftp.Client, localPath, remotePath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer localFile.Close()

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return err
	}
	defer remoteFile.Close()

	if _, err := io.Copy(remoteFile, localFile); err != nil {
		return err
	}

	return nil
}

// Run executes one deploy step on the remote host. Environment entries
// travel through the SSH session itself and are never echoed into the
// output stream.
func (rd *RemoteDeployer) Run(
	ctx context.Context,
	spec CommandSpec,
	outputCh chan<- string,
) (int, error) {
	if err := rd.connect(); err != nil {
		return -1, err
	}

	sess, err := rd.client.NewSession()
	if err != nil {
		return -1, err
	}
	defer sess.Close()

	for _, kv := range spec.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := sess.Setenv(name, value); err != nil {
			return -1, fmt.Errorf("passing %s to deploy host: %w", name, err)
		}
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return -1, err
	}

	cmd := spec.Script
	if spec.Dir != "" {
		cmd = fmt.Sprintf("cd %s && %s", spec.Dir, spec.Script)
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	doneCh := make(chan error, 1)
	go func() {
		if err := sess.Start(cmd); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err starting deploy step %q", cmd), err)
			return
		}

		var wg sync.WaitGroup
		wg.Go(func() {
			scanner := bufio.NewScanner(stdout)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})
		wg.Go(func() {
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})

		err := sess.Wait()
		wg.Wait()
		doneCh <- err
	}()

	select {
	case <-runCtx.Done():
		sess.Signal(ssh.SIGINT)
		if ctx.Err() != nil {
			return -1, RunCancelError{Message: "deploy step cancelled"}
		}
		return -1, fmt.Errorf("deploy step timed out after %s: %q", spec.Timeout, spec.Script)
	case err := <-doneCh:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, err
	}
}
