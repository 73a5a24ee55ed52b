package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/driveback/driveback/backend/onedrive/api"
	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/fs/fserrors"
	"github.com/driveback/driveback/lib/pacer"
	"github.com/driveback/driveback/lib/readers"
	"github.com/driveback/driveback/lib/rest"
)

// UploadSessionError is returned when a fragmented upload has been
// aborted.  By the time it is raised the server side session has been
// cancelled, so the caller may retry the whole file.
type UploadSessionError struct {
	FragmentIndex int   // index of the fragment that failed
	FragmentCount int   // how many fragments the upload had
	Err           error // what went wrong
}

// Error satisfies the error interface
func (e *UploadSessionError) Error() string {
	return fmt.Sprintf("upload session failed at fragment %d/%d: %v", e.FragmentIndex+1, e.FragmentCount, e.Err)
}

// Unwrap returns the underlying cause
func (e *UploadSessionError) Unwrap() error {
	return e.Err
}

// createUploadSession starts an upload session for the object.  The
// body is the literal `{}` - the server accepts an empty object where
// some front ends reject a missing body.
func (o *Object) createUploadSession(ctx context.Context) (response *api.UploadSession, err error) {
	opts := newOptsCallWithPath(o.rootPath(), "POST", "/createUploadSession")
	createRequest := api.CreateUploadRequest{}
	var resp *http.Response
	tctx, cancel := o.fs.shortCtx(ctx)
	defer cancel()
	err = o.fs.pacer.Call(func() (bool, error) {
		resp, err = o.fs.srv.CallJSON(tctx, &opts, &createRequest, &response)
		return shouldRetry(tctx, resp, err)
	})
	return response, err
}

// cancelUploadSession cancels an upload session.  Like the fragment
// PUTs this request must not be signed.
func (o *Object) cancelUploadSession(ctx context.Context, url string) (err error) {
	opts := rest.Opts{
		Method:     "DELETE",
		RootURL:    url,
		NoResponse: true,
		NoAuth:     true,
	}
	var resp *http.Response
	tctx, cancel := o.fs.shortCtx(ctx)
	defer cancel()
	err = o.fs.pacer.Call(func() (bool, error) {
		resp, err = o.fs.srv.Call(tctx, &opts)
		return shouldRetry(tctx, resp, err)
	})
	return
}

// retryBackoff sleeps for the exponential backoff of the given
// attempt, or longer if the host's Retry-After deadline is later.
func (o *Object) retryBackoff(ctx context.Context, try int, host string) error {
	sleep := time.Duration(o.fs.opt.FragmentRetryDelay) << uint(try)
	if gateDelay := pacer.StandardGate.Delay(host); gateDelay > sleep {
		sleep = gateDelay
	}
	fs.Debugf(o, "Retrying fragment in %v", sleep)
	timer := time.NewTimer(sleep)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}
	return nil
}

// uploadFragment uploads one byte range of the session, retrying the
// same range up to fragment_retry_count times.
//
// Server errors (5xx) back off exponentially before the next try;
// 408/409/429 are retried without extra delay (the transport gate
// already holds 429s back); any other client error, a 404 (the
// session is gone) or a non-HTTP error aborts.  Before every retry
// the chunk is unconditionally rewound to the start of the fragment.
//
// On the final fragment the server replies with the finished item,
// which is returned.
func (o *Object) uploadFragment(ctx context.Context, uploadURL string, start int64, totalSize int64, chunk io.ReadSeeker, chunkSize int64, final bool) (info *api.Item, err error) {
	host := ""
	if u, parseErr := url.Parse(uploadURL); parseErr == nil {
		host = u.Host
	}
	var resp *http.Response
	for try := 0; try < o.fs.opt.FragmentRetries; try++ {
		if try > 0 {
			if _, seekErr := chunk.Seek(0, io.SeekStart); seekErr != nil {
				return nil, fmt.Errorf("can't rewind stream for fragment retry: %w", seekErr)
			}
		}
		toSend := chunkSize
		opts := rest.Opts{
			Method:        "PUT",
			RootURL:       uploadURL,
			ContentLength: &toSend,
			ContentRange:  fmt.Sprintf("bytes %d-%d/%d", start, start+chunkSize-1, totalSize),
			Body:          chunk,
			NoAuth:        true,
		}
		resp, err = o.fs.srv.Call(ctx, &opts)
		if err == nil {
			body, readErr := rest.ReadBody(resp)
			if readErr != nil {
				return nil, readErr
			}
			if !final {
				var session api.UploadSession
				if jsonErr := json.Unmarshal(body, &session); jsonErr == nil && len(session.NextExpectedRanges) > 0 {
					fs.Debugf(o, "Next expected ranges: %v", session.NextExpectedRanges)
				}
				return nil, nil
			}
			info = &api.Item{}
			if jsonErr := json.Unmarshal(body, info); jsonErr != nil {
				return nil, fmt.Errorf("%w: completed upload: %v", fs.ErrorParse, jsonErr)
			}
			return info, nil
		}
		if fserrors.ContextError(ctx, &err) {
			return nil, err
		}
		if resp == nil {
			// I/O or other non-HTTP failure
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			// the session is gone, no point continuing
			return nil, err
		case resp.StatusCode >= 500:
			fs.Debugf(o, "Fragment upload failed (%d): %v", resp.StatusCode, err)
			if backoffErr := o.retryBackoff(ctx, try, host); backoffErr != nil {
				return nil, backoffErr
			}
		case resp.StatusCode == http.StatusRequestTimeout,
			resp.StatusCode == http.StatusConflict,
			resp.StatusCode == http.StatusTooManyRequests:
			fs.Debugf(o, "Fragment upload failed (%d), retrying: %v", resp.StatusCode, err)
		default:
			return nil, err
		}
	}
	return nil, err
}

// uploadMultipart uploads a file using an upload session.  Fragments
// are uploaded strictly sequentially; any failure cancels the session
// and is reported as an UploadSessionError.
func (o *Object) uploadMultipart(ctx context.Context, in io.Reader, size int64, options ...fs.OpenOption) (info *api.Item, err error) {
	if size <= 0 {
		return nil, errors.New("multipart upload needs a known, non-zero size")
	}

	// Create upload session
	fs.Debugf(o, "Starting multipart upload")
	session, err := o.createUploadSession(ctx)
	if err != nil {
		return nil, err
	}
	uploadURL := session.UploadURL

	// Upload the fragments
	bufferSize := int64(o.fs.opt.FragmentSize)
	if bufferSize > size {
		bufferSize = size
	}
	fragments := int((size + bufferSize - 1) / bufferSize)
	remaining := size
	position := int64(0)
	index := 0
	for remaining > 0 {
		n := bufferSize
		if remaining < n {
			n = remaining
		}
		seg := readers.NewRepeatableLimitReader(in, int(n))
		fs.Debugf(o, "Uploading fragment %d/%d offset %d/%d size %d", index+1, fragments, position, size, n)
		final := remaining == n
		info, err = o.uploadFragment(ctx, uploadURL, position, size, seg, n, final)
		if err != nil {
			fs.Debugf(o, "Cancelling multipart upload: %v", err)
			cancelErr := o.cancelUploadSession(ctx, uploadURL)
			if cancelErr != nil {
				fs.Logf(o, "Failed to cancel multipart upload: %v (upload failed due to: %v)", cancelErr, err)
			}
			return nil, &UploadSessionError{
				FragmentIndex: index,
				FragmentCount: fragments,
				Err:           err,
			}
		}
		remaining -= n
		position += n
		index++
	}

	return info, nil
}

// uploadSinglepart uploads the content of a file of up to
// uploadCutoff bytes in one request.
func (o *Object) uploadSinglepart(ctx context.Context, in io.Reader, size int64, options ...fs.OpenOption) (info *api.Item, err error) {
	if size < 0 || size > uploadCutoff {
		return nil, errors.New("size passed into uploadSinglepart must be >= 0 and <= uploadCutoff")
	}

	fs.Debugf(o, "Starting singlepart upload")
	seg := readers.NewRepeatableLimitReader(in, int(size))
	var resp *http.Response
	opts := newOptsCallWithPath(o.rootPath(), "PUT", "/content")
	opts.ContentType = "application/octet-stream"
	opts.ContentLength = &size
	opts.Body = seg
	opts.Options = options

	err = o.fs.pacer.Call(func() (bool, error) {
		if _, seekErr := seg.Seek(0, io.SeekStart); seekErr != nil {
			return false, seekErr
		}
		resp, err = o.fs.srv.CallJSON(ctx, &opts, nil, &info)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
