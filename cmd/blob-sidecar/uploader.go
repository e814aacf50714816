package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// blobUploader mirrors appended message-log bytes into one append-friendly
// block blob per log file, one blob per device/channel. Each call stages a
// new block for the bytes appended since the last call and commits the
// growing block list, so a blob's final contents always equal the source
// file's contents at commit time.
type blobUploader struct {
	client *azblob.Client
}

func newBlobUploader(containerURL string) (*blobUploader, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("blob-sidecar: default azure credential: %w", err)
	}
	// containerURL is the container endpoint; azblob.NewClient accepts the
	// service endpoint, so the client is built on the URL with the container
	// segment stripped and upload addresses the container by name per call.
	client, err := azblob.NewClient(serviceEndpoint(containerURL), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("blob-sidecar: new blob client: %w", err)
	}
	return &blobUploader{client: client}, nil
}

// serviceEndpoint strips the container path segment off a full container
// URL, since azblob.Client is constructed against the service endpoint and
// addresses containers/blobs by name on each call.
func serviceEndpoint(containerURL string) string {
	idx := strings.Index(containerURL[8:], "/")
	if idx < 0 {
		return containerURL
	}
	return containerURL[:8+idx]
}

func containerName(containerURL string) string {
	idx := strings.Index(containerURL[8:], "/")
	if idx < 0 {
		return ""
	}
	return strings.Trim(containerURL[8+idx:], "/")
}

// upload stages records as a single block for relPath, with a block ID
// derived from offset, and commits it appended to the blob's existing
// committed block list so the blob's bytes match the source file up to
// offset+len(records).
func (u *blobUploader) upload(ctx context.Context, containerURL, relPath string, offset int64, records []byte) error {
	container := containerName(containerURL)
	blobClient := u.client.ServiceClient().NewContainerClient(container).NewBlockBlobClient(blobName(relPath))

	blockID := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%020d", offset)))
	if _, err := blobClient.StageBlock(ctx, blockID, newNopCloserReader(records), nil); err != nil {
		return fmt.Errorf("blob-sidecar: stage block for %s: %w", relPath, err)
	}

	existing, err := listCommittedBlocks(ctx, blobClient)
	if err != nil {
		// Blob may not exist yet: treat as empty block list.
		existing = nil
	}
	blockIDs := append(existing, blockID)

	if _, err := blobClient.CommitBlockList(ctx, blockIDs, nil); err != nil {
		return fmt.Errorf("blob-sidecar: commit block list for %s: %w", relPath, err)
	}
	return nil
}

func listCommittedBlocks(ctx context.Context, blobClient *blockblob.Client) ([]string, error) {
	resp, err := blobClient.GetBlockList(ctx, blockblob.BlockListTypeCommitted, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.BlockList.CommittedBlocks))
	for _, b := range resp.BlockList.CommittedBlocks {
		if b.Name != nil {
			ids = append(ids, *b.Name)
		}
	}
	return ids, nil
}

// blobName turns a relative log path (e.g. "devices/aabbccddeeff/messages.bin")
// into a flat blob name, since the slash is already a valid blob-name
// separator in Azure's virtual directory convention.
func blobName(relPath string) string {
	return strings.ReplaceAll(relPath, "\\", "/")
}

// nopCloserReader adapts a byte slice to io.ReadSeekCloser, which
// StageBlock requires so it can retry a failed upload by seeking back to
// the start without the caller re-opening anything.
type nopCloserReader struct {
	*bytes.Reader
}

func newNopCloserReader(b []byte) nopCloserReader {
	return nopCloserReader{bytes.NewReader(b)}
}

func (nopCloserReader) Close() error { return nil }
