package main

import (
	"testing"

	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/pkg/types"
)

func TestBuildRequestRequiresSourceOrSourceFiles(t *testing.T) {
	_, err := buildRequest("", "", "/dst", false, "skip", false, "folders", "standard", nil)
	if err == nil {
		t.Fatal("expected an error when neither --src nor --src-files is given")
	}
}

func TestBuildRequestRejectsBothSourceFlags(t *testing.T) {
	_, err := buildRequest("/src", "/a.txt,/b.txt", "/dst", false, "skip", false, "folders", "standard", nil)
	if err == nil {
		t.Fatal("expected an error when both --src and --src-files are given")
	}
}

func TestBuildRequestRequiresDestination(t *testing.T) {
	_, err := buildRequest("/src", "", "", false, "skip", false, "folders", "standard", nil)
	if err == nil {
		t.Fatal("expected an error when --dst is missing")
	}
}

func TestBuildRequestRejectsInvalidConflictMode(t *testing.T) {
	_, err := buildRequest("/src", "", "/dst", false, "bogus", false, "folders", "standard", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid --conflict value")
	}
}

func TestBuildRequestRejectsInvalidMode(t *testing.T) {
	_, err := buildRequest("/src", "", "/dst", false, "skip", false, "bogus", "standard", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid --mode value")
	}
}

func TestBuildRequestRejectsInvalidMethod(t *testing.T) {
	_, err := buildRequest("/src", "", "/dst", false, "skip", false, "folders", "bogus", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid --method value")
	}
}

func TestBuildRequestParsesLocalSourceRoot(t *testing.T) {
	req, err := buildRequest("/src", "", "/dst", true, "rename", true, "files", "rsync", excludeFlags{"/cache", "~*.tmp"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.SourceRoot == nil {
		t.Fatal("expected SourceRoot to be set")
	}
	if _, ok := req.SourceRoot.(endpoint.Local); !ok {
		t.Fatalf("SourceRoot = %T, want endpoint.Local", req.SourceRoot)
	}
	if !req.Move {
		t.Fatal("expected Move=true")
	}
	if req.Conflict != types.ConflictRename {
		t.Fatalf("Conflict = %v, want Rename", req.Conflict)
	}
	if !req.StripSpaces {
		t.Fatal("expected StripSpaces=true")
	}
	if req.Mode != types.ModeFilesOnly {
		t.Fatalf("Mode = %v, want FilesOnly", req.Mode)
	}
	if req.Method != types.MethodRsync {
		t.Fatalf("Method = %v, want Rsync", req.Method)
	}
	if len(req.Exclusions) != 2 {
		t.Fatalf("Exclusions = %v, want 2 entries", req.Exclusions)
	}
}

// An explicit file list always implies FilesOnly mode, even when --mode
// requested folders.
func TestBuildRequestSourceFilesForcesFilesOnlyMode(t *testing.T) {
	req, err := buildRequest("", "/a.txt, /b.txt", "/dst", false, "skip", false, "folders", "standard", nil)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.SourceRoot != nil {
		t.Fatalf("SourceRoot should be nil when --src-files is used, got %v", req.SourceRoot)
	}
	if len(req.SourceFiles) != 2 {
		t.Fatalf("SourceFiles = %v, want 2 entries", req.SourceFiles)
	}
	if req.Mode != types.ModeFilesOnly {
		t.Fatalf("Mode = %v, want FilesOnly forced by --src-files", req.Mode)
	}
}

func TestBuildRequestRejectsEmptySourceFilesList(t *testing.T) {
	_, err := buildRequest("", " , ,", "/dst", false, "skip", false, "folders", "standard", nil)
	if err == nil {
		t.Fatal("expected an error when --src-files lists no usable paths")
	}
}

func TestBuildRequestParsesRemoteDestination(t *testing.T) {
	req, err := buildRequest("/src", "", "example.com:/tmp/dest", false, "skip", false, "folders", "standard", nil)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	remoteDst, ok := req.Destination.(endpoint.Remote)
	if !ok {
		t.Fatalf("Destination = %T, want endpoint.Remote", req.Destination)
	}
	if remoteDst.Host != "example.com" || remoteDst.Path != "/tmp/dest" {
		t.Fatalf("Destination = %+v, want host=example.com path=/tmp/dest", remoteDst)
	}
}
