// Package onedrive provides an interface to Microsoft Graph backed
// drives - OneDrive personal, OneDrive for business and SharePoint
// document libraries.
package onedrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/driveback/driveback/backend/onedrive/api"
	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/fs/config/configmap"
	"github.com/driveback/driveback/fs/config/configstruct"
	"github.com/driveback/driveback/fs/fserrors"
	"github.com/driveback/driveback/fs/fshttp"
	"github.com/driveback/driveback/lib/dircache"
	"github.com/driveback/driveback/lib/oauthutil"
	"github.com/driveback/driveback/lib/pacer"
	"github.com/driveback/driveback/lib/rest"
	"golang.org/x/oauth2"
)

const (
	minSleep      = 10 * time.Millisecond
	maxSleep      = 2 * time.Second
	decayConstant = 2 // bigger for slower decay, exponential

	apiVersion = "/v1.0"

	// Files up to this size are uploaded with a single PUT, above
	// it an upload session is used.
	uploadCutoff = 4_000_000

	// Fragment sizes must be a multiple of this
	fragmentSizeMultiple = 320 * fs.Kibi
	minFragmentSize      = 320 * fs.Kibi
	maxFragmentSize      = 60 * fs.Mebi
	defaultFragmentSize  = 10 * fs.Mebi

	defaultFragmentRetries    = 5
	defaultFragmentRetryDelay = fs.Duration(time.Second)

	defaultListChunk = 1000

	driveTypePersonal   = "personal"
	driveTypeBusiness   = "business"
	driveTypeSharepoint = "documentLibrary"
)

// Globals
var (
	authPath  = "/common/oauth2/v2.0/authorize"
	tokenPath = "/common/oauth2/v2.0/token"

	scopeAccess = []string{"Files.Read", "Files.ReadWrite", "Files.Read.All", "Files.ReadWrite.All", "offline_access"}

	graphAPIEndpoint = map[string]string{
		"global": "https://graph.microsoft.com",
		"us":     "https://graph.microsoft.us",
		"de":     "https://graph.microsoft.de",
		"cn":     "https://microsoftgraph.chinacloudapi.cn",
	}

	authEndpoint = map[string]string{
		"global": "https://login.microsoftonline.com",
		"us":     "https://login.microsoftonline.us",
		"de":     "https://login.microsoftonline.de",
		"cn":     "https://login.chinacloudapi.cn",
	}
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "onedrive",
		Description: "Microsoft OneDrive",
		NewFs:       NewFs,
	})
}

// Options defines the configuration for this backend
type Options struct {
	Region             string        `config:"region"`
	AuthID             string        `config:"auth_id"`
	DriveID            string        `config:"drive_id"`
	DriveType          string        `config:"drive_type"`
	SiteID             string        `config:"site_id"`
	FragmentSize       fs.SizeSuffix `config:"fragment_size"`
	FragmentRetries    int           `config:"fragment_retry_count"`
	FragmentRetryDelay fs.Duration   `config:"fragment_retry_delay"`
	ListChunk          int           `config:"list_chunk"`
}

// Fs represents a remote OneDrive
type Fs struct {
	name     string             // name of this remote
	root     string             // the path we are working on
	opt      Options            // parsed options
	ci       *fs.ConfigInfo     // global config
	srv      *rest.Client       // the connection to the server
	dirCache *dircache.DirCache // Map of directory path to directory id
	pacer    *pacer.Pacer       // pacer for API calls

	resolveOnce sync.Once // drive prefix resolution below runs exactly once
	drivePath   string    // eg /me/drive or /drives/{id}
	driveType   string
	resolveErr  error
}

// Object describes a OneDrive object
type Object struct {
	fs          *Fs    // what this object is part of
	remote      string // The remote path
	hasMetaData bool   // whether info below has been set
	size        int64  // size of the object
	modTime     time.Time
	id          string // ID of the object
	mimeType    string // Content-Type of object from server (may not be as uploaded)
}

// ------------------------------------------------------------

// Name of the remote (as passed into NewFs)
func (f *Fs) Name() string {
	return f.name
}

// Root of the remote (as passed into NewFs)
func (f *Fs) Root() string {
	return f.root
}

// String converts this Fs to a string
func (f *Fs) String() string {
	return fmt.Sprintf("OneDrive root '%s'", f.root)
}

// parsePath normalizes a user supplied root: a URL form like
// "onedrive://backup/dir" is reduced to its host+path component,
// backslashes become forward slashes and leading and trailing slashes
// are dropped, so the empty path stays empty.
func parsePath(p string) (root string) {
	if u, err := url.Parse(p); err == nil && u.Scheme != "" {
		p = u.Host + u.Path
	}
	root = strings.ReplaceAll(p, `\`, "/")
	root = strings.Trim(root, "/")
	return
}

// retryErrorCodes is a slice of error codes that we will retry
var retryErrorCodes = []int{
	429, // Too Many Requests.
	500, // Internal Server Error
	502, // Bad Gateway
	503, // Service Unavailable
	504, // Gateway Timeout
	509, // Bandwidth Limit Exceeded
}

// shouldRetry returns a boolean as to whether this resp and err
// deserve to be retried.  It returns the err as a convenience.
func shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if fserrors.ContextError(ctx, &err) {
		return false, err
	}
	retry := false
	if resp != nil {
		switch resp.StatusCode {
		case 401:
			if len(resp.Header["Www-Authenticate"]) == 1 && strings.Contains(resp.Header["Www-Authenticate"][0], "expired_token") {
				retry = true
				fs.Debugf(nil, "Should retry: %v", err)
			}
		case 429, 503:
			// The transport gate has already recorded the
			// Retry-After deadline; reflect it into the pacer
			// so this call's retry honours it too.
			if delay := pacer.StandardGate.Delay(hostOf(resp.Request)); delay > 0 {
				retry = true
				err = pacer.RetryAfterError(err, delay)
				fs.Debugf(nil, "Too many requests. Trying again in %v.", delay)
			}
		case 507: // Insufficient Storage
			return false, fserrors.FatalError(err)
		}
	}
	return retry || fserrors.ShouldRetry(err) || fserrors.ShouldRetryHTTP(resp, retryErrorCodes), err
}

func hostOf(req *http.Request) string {
	if req == nil {
		return ""
	}
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}

// isNotFoundError reports whether resp and err represent the
// distinguished item-not-found condition.
func isNotFoundError(resp *http.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.ErrorInfo.Code == "itemNotFound"
	}
	return false
}

// errorHandler parses a non 2xx error response into an error
func errorHandler(resp *http.Response) error {
	// Decode error response
	errResponse := new(api.Error)
	err := rest.DecodeJSON(resp, &errResponse)
	if err != nil {
		fs.Debugf(nil, "Couldn't decode error response: %v", err)
	}
	if errResponse.ErrorInfo.Code == "" {
		errResponse.ErrorInfo.Code = resp.Status
	}
	return errResponse
}

// checkFragmentSize clamps cs into [minFragmentSize, maxFragmentSize]
// and rounds it down to a multiple of fragmentSizeMultiple.
func checkFragmentSize(cs fs.SizeSuffix) fs.SizeSuffix {
	if cs > maxFragmentSize {
		cs = maxFragmentSize
	}
	if cs < minFragmentSize {
		cs = minFragmentSize
	}
	return cs - cs%fragmentSizeMultiple
}

// shortCtx returns a context with the control plane timeout applied
func (f *Fs) shortCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.ci.ShortTimeout)
}

// listCtx returns a context with the listing timeout applied
func (f *Fs) listCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.ci.ListTimeout)
}

// NewFs constructs an Fs from the path, container:path
func NewFs(ctx context.Context, name, root string, m configmap.Mapper) (fs.Fs, error) {
	// Parse config into Options struct
	opt := new(Options)
	err := configstruct.Set(m, opt)
	if err != nil {
		return nil, err
	}
	if opt.AuthID == "" {
		return nil, errors.New("auth_id not set - authorize the remote first")
	}
	if opt.Region == "" {
		opt.Region = "global"
	}
	if _, ok := graphAPIEndpoint[opt.Region]; !ok {
		return nil, fmt.Errorf("unknown region %q", opt.Region)
	}
	if opt.FragmentSize == 0 {
		opt.FragmentSize = defaultFragmentSize
	}
	opt.FragmentSize = checkFragmentSize(opt.FragmentSize)
	if opt.FragmentRetries < 1 {
		opt.FragmentRetries = defaultFragmentRetries
	}
	if opt.FragmentRetryDelay == 0 {
		opt.FragmentRetryDelay = defaultFragmentRetryDelay
	}
	if opt.ListChunk <= 0 {
		opt.ListChunk = defaultListChunk
	}

	root = parsePath(root)
	ci := fs.GetConfig(ctx)
	client := fshttp.NewClient(ctx)

	oauthConfig := &oauth2.Config{
		ClientID: opt.AuthID,
		Scopes:   scopeAccess,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authEndpoint[opt.Region] + authPath,
			TokenURL: authEndpoint[opt.Region] + tokenPath,
		},
	}
	ts, err := oauthutil.NewTokenSource(ctx, name, m, oauthConfig, client)
	if err != nil {
		return nil, fmt.Errorf("failed to configure OneDrive: %w", err)
	}

	f := &Fs{
		name:  name,
		root:  root,
		opt:   *opt,
		ci:    ci,
		srv:   rest.NewClient(client),
		pacer: pacer.New(pacer.MinSleep(minSleep), pacer.MaxSleep(maxSleep), pacer.DecayConstant(decayConstant)),
	}
	f.srv.SetErrorHandler(errorHandler)
	f.srv.SetSigner(func(req *http.Request) error {
		token, err := ts.Token()
		if err != nil {
			return err
		}
		token.SetAuthHeader(req)
		return nil
	})
	return f, nil
}

// resolveDrive computes the drive prefix exactly once, lazily.  For
// SharePoint sites this needs a network call to turn the site into a
// drive ID; concurrent first callers share the single attempt.
func (f *Fs) resolveDrive(ctx context.Context) error {
	f.resolveOnce.Do(func() {
		endpoint := graphAPIEndpoint[f.opt.Region]
		switch {
		case f.opt.DriveID != "":
			f.drivePath = "/drives/" + f.opt.DriveID
		case f.opt.SiteID != "":
			var drive api.Drive
			opts := rest.Opts{
				Method:  "GET",
				RootURL: endpoint + apiVersion + "/sites/" + f.opt.SiteID + "/drive",
			}
			tctx, cancel := f.shortCtx(ctx)
			defer cancel()
			err := f.pacer.Call(func() (bool, error) {
				resp, err := f.srv.CallJSON(tctx, &opts, nil, &drive)
				return shouldRetry(tctx, resp, err)
			})
			if err != nil {
				f.resolveErr = fmt.Errorf("failed to resolve site %q to a drive: %w", f.opt.SiteID, err)
				return
			}
			f.drivePath = "/drives/" + drive.ID
			f.driveType = drive.DriveType
		default:
			f.drivePath = "/me/drive"
		}
		if f.driveType == "" {
			f.driveType = f.opt.DriveType
		}
		f.srv.SetRoot(endpoint + apiVersion + f.drivePath)
		fs.Debugf(f, "Resolved drive prefix %q", apiVersion+f.drivePath)

		// Find the ID of the drive root so the directory cache can
		// walk from it.
		var rootInfo api.Item
		opts := rest.Opts{
			Method: "GET",
			Path:   "/root",
		}
		tctx, cancel := f.shortCtx(ctx)
		defer cancel()
		err := f.pacer.Call(func() (bool, error) {
			resp, err := f.srv.CallJSON(tctx, &opts, nil, &rootInfo)
			return shouldRetry(tctx, resp, err)
		})
		if err != nil {
			f.resolveErr = fmt.Errorf("failed to get drive root: %w", err)
			return
		}
		f.dirCache = dircache.New(f.root, rootInfo.ID, f)
	})
	return f.resolveErr
}

// rootPath returns the full path of remote below the drive root
func (f *Fs) rootPath(remote string) string {
	if f.root == "" {
		return remote
	}
	if remote == "" {
		return f.root
	}
	return f.root + "/" + remote
}

// newOptsCallWithPath builds the rest.Opts for a path based call.
// route is one of "", "/content", "/children" or
// "/createUploadSession"; "" addresses the item metadata itself.
func newOptsCallWithPath(p string, method string, route string) (opts rest.Opts) {
	p = rest.URLPathEscape(p)
	var urlPath string
	if p == "" {
		// the drive root can't use the :path: form
		urlPath = "/root" + route
	} else if route == "" {
		urlPath = "/root:/" + p
	} else {
		urlPath = "/root:/" + p + ":" + route
	}
	return rest.Opts{
		Method: method,
		Path:   urlPath,
	}
}

// newOptsCall builds the rest.Opts for an ID based call
func newOptsCall(id string, method string, route string) (opts rest.Opts) {
	return rest.Opts{
		Method: method,
		Path:   "/items/" + id + route,
	}
}

// readMetaDataForPath reads the metadata from the path (relative to
// the drive root)
func (f *Fs) readMetaDataForPath(ctx context.Context, path string) (info *api.Item, resp *http.Response, err error) {
	if err := f.resolveDrive(ctx); err != nil {
		return nil, nil, err
	}
	opts := newOptsCallWithPath(path, "GET", "")
	tctx, cancel := f.shortCtx(ctx)
	defer cancel()
	err = f.pacer.Call(func() (bool, error) {
		resp, err = f.srv.CallJSON(tctx, &opts, nil, &info)
		return shouldRetry(tctx, resp, err)
	})
	return info, resp, err
}

// FindLeaf finds a directory of name leaf in the folder with ID pathID
func (f *Fs) FindLeaf(ctx context.Context, pathID, leaf string) (pathIDOut string, found bool, err error) {
	opts := rest.Opts{
		Method: "GET",
		Path:   "/items/" + pathID + ":/" + rest.URLPathEscape(leaf),
	}
	var info api.Item
	var resp *http.Response
	tctx, cancel := f.shortCtx(ctx)
	defer cancel()
	err = f.pacer.Call(func() (bool, error) {
		resp, err = f.srv.CallJSON(tctx, &opts, nil, &info)
		return shouldRetry(tctx, resp, err)
	})
	if err != nil {
		if isNotFoundError(resp, err) {
			return "", false, nil
		}
		return "", false, err
	}
	if !info.IsFolder() {
		return "", false, fs.ErrorIsFile
	}
	return info.ID, true, nil
}

// CreateDir makes a directory with pathID as parent and name leaf
func (f *Fs) CreateDir(ctx context.Context, dirID, leaf string) (newID string, err error) {
	var resp *http.Response
	var info *api.Item
	opts := newOptsCall(dirID, "POST", "/children")
	mkdir := api.CreateItemRequest{
		Name:             leaf,
		ConflictBehavior: "fail",
	}
	tctx, cancel := f.shortCtx(ctx)
	defer cancel()
	err = f.pacer.Call(func() (bool, error) {
		resp, err = f.srv.CallJSON(tctx, &opts, &mkdir, &info)
		return shouldRetry(tctx, resp, err)
	})
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// list the objects into the function supplied
//
// If an error is returned then processing stops
type listAllFn func(*api.Item) error

// listAll lists the directory with ID dirID, calling fn on each item
// found.  It follows @odata.nextLink until the collection is
// exhausted; each page gets its own listing timeout.
func (f *Fs) listAll(ctx context.Context, dirID string, fn listAllFn) (err error) {
	opts := newOptsCall(dirID, "GET", "/children")
	opts.Parameters = url.Values{"$top": {fmt.Sprintf("%d", f.opt.ListChunk)}}
	for {
		var result api.ListChildrenResponse
		var resp *http.Response
		tctx, cancel := f.listCtx(ctx)
		err = f.pacer.Call(func() (bool, error) {
			resp, err = f.srv.CallJSON(tctx, &opts, nil, &result)
			return shouldRetry(tctx, resp, err)
		})
		cancel()
		if err != nil {
			if isNotFoundError(resp, err) {
				return fs.ErrorDirNotFound
			}
			return fmt.Errorf("couldn't list files: %w", err)
		}
		for i := range result.Value {
			item := &result.Value[i]
			if item.Deleted != nil {
				continue
			}
			err = fn(item)
			if err != nil {
				return err
			}
		}
		if result.NextLink == "" {
			break
		}
		opts.Path = ""
		opts.Parameters = nil
		opts.RootURL = result.NextLink
	}
	return nil
}

// itemToDirEntry converts a list item into a DirEntry
func (f *Fs) itemToDirEntry(ctx context.Context, dir string, info *api.Item) (entry fs.DirEntry, err error) {
	remote := path.Join(dir, info.Name)
	if info.IsFolder() {
		// cache the directory ID for later lookups
		f.dirCache.Put(remote, info.ID)
		d := fs.NewDir(remote, info.GetLastModifiedDateTime()).SetID(info.ID)
		d.SetItems(info.Folder.ChildCount)
		entry = d
	} else {
		o, err := f.newObjectWithInfo(remote, info)
		if err != nil {
			return nil, err
		}
		entry = o
	}
	return entry, nil
}

// List the objects and directories in dir into entries.  The
// entries can be returned in any order but should be for a
// complete directory.
//
// dir should be "" to list the root, and should not have
// trailing slashes.
//
// This should return ErrorDirNotFound if the directory isn't
// found.
func (f *Fs) List(ctx context.Context, dir string) (entries fs.DirEntries, err error) {
	if err := f.resolveDrive(ctx); err != nil {
		return nil, err
	}
	directoryID, err := f.dirCache.FindDir(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	err = f.listAll(ctx, directoryID, func(info *api.Item) error {
		entry, err := f.itemToDirEntry(ctx, dir, info)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// newObjectWithInfo returns an Object from a path and its metadata
func (f *Fs) newObjectWithInfo(remote string, info *api.Item) (*Object, error) {
	o := &Object{
		fs:     f,
		remote: remote,
	}
	if info != nil {
		if err := o.setMetaData(info); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// NewObject finds the Object at remote.  If it can't be found
// it returns the error fs.ErrorObjectNotFound.
func (f *Fs) NewObject(ctx context.Context, remote string) (fs.Object, error) {
	o := &Object{
		fs:     f,
		remote: remote,
	}
	err := o.readMetaData(ctx)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Put the object into the remote
//
// Copy the reader in to the new object which is returned.
//
// The new object may have been created if an error is returned.
func (f *Fs) Put(ctx context.Context, in io.Reader, src fs.ObjectInfo, options ...fs.OpenOption) (fs.Object, error) {
	if err := f.resolveDrive(ctx); err != nil {
		return nil, err
	}
	remote := src.Remote()
	// Create parent directories
	_, _, err := f.dirCache.FindPath(ctx, remote, true)
	if err != nil {
		return nil, err
	}
	o := &Object{
		fs:     f,
		remote: remote,
	}
	return o, o.Update(ctx, in, src, options...)
}

// Mkdir creates the directory if it doesn't exist
func (f *Fs) Mkdir(ctx context.Context, dir string) error {
	if err := f.resolveDrive(ctx); err != nil {
		return err
	}
	_, err := f.dirCache.FindDir(ctx, dir, true)
	return err
}

// About gets quota information
func (f *Fs) About(ctx context.Context) (usage *fs.Usage, err error) {
	if err := f.resolveDrive(ctx); err != nil {
		return nil, err
	}
	var drive api.Drive
	opts := rest.Opts{
		Method: "GET",
		Path:   "",
	}
	var resp *http.Response
	tctx, cancel := f.shortCtx(ctx)
	defer cancel()
	err = f.pacer.Call(func() (bool, error) {
		resp, err = f.srv.CallJSON(tctx, &opts, nil, &drive)
		return shouldRetry(tctx, resp, err)
	})
	if err != nil {
		return nil, err
	}
	q := drive.Quota
	// On some SharePoint drives these are all 0 so return unknown in that case
	if q.Total == 0 && q.Used == 0 && q.Deleted == 0 && q.Remaining == 0 {
		return &fs.Usage{}, nil
	}
	usage = &fs.Usage{
		Total:   fs.NewUsageValue(q.Total),     // quota of bytes that can be used
		Used:    fs.NewUsageValue(q.Used),      // bytes in use
		Trashed: fs.NewUsageValue(q.Deleted),   // bytes in trash
		Free:    fs.NewUsageValue(q.Remaining), // bytes which can be uploaded before reaching the quota
	}
	return usage, nil
}

// Test checks that the configured root exists and that the
// credentials allow a write/read/delete round trip.
func (f *Fs) Test(ctx context.Context) error {
	_, resp, err := f.readMetaDataForPath(ctx, f.root)
	if err != nil {
		if isNotFoundError(resp, err) {
			return fs.ErrorDirNotFound
		}
		return err
	}
	probe := fmt.Sprintf("driveback-verify-%d.tmp", time.Now().UnixNano())
	payload := []byte("driveback connectivity test\n")
	src := fs.NewStaticObjectInfo(probe, time.Now(), int64(len(payload)))
	obj, err := f.Put(ctx, bytes.NewReader(payload), src)
	if err != nil {
		return fmt.Errorf("test upload failed: %w", err)
	}
	defer func() {
		if removeErr := obj.Remove(ctx); removeErr != nil {
			fs.Errorf(f, "Failed to remove test file %q: %v", probe, removeErr)
		}
	}()
	rc, err := obj.Open(ctx)
	if err != nil {
		return fmt.Errorf("test download failed: %w", err)
	}
	got, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return fmt.Errorf("test download failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("test download failed: %w", closeErr)
	}
	if !bytes.Equal(got, payload) {
		return errors.New("test round trip returned different data")
	}
	return nil
}

// ------------------------------------------------------------

// Fs returns the parent Fs
func (o *Object) Fs() fs.Info {
	return o.fs
}

// String returns a description of the Object
func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	return o.remote
}

// Remote returns the remote path
func (o *Object) Remote() string {
	return o.remote
}

// rootPath returns the full path of the object below the drive root
func (o *Object) rootPath() string {
	return o.fs.rootPath(o.remote)
}

// Size returns the size of an object in bytes
func (o *Object) Size() int64 {
	err := o.readMetaData(context.TODO())
	if err != nil {
		fs.Logf(o, "Failed to read metadata: %v", err)
		return -1
	}
	return o.size
}

// ModTime returns the modification time of the object
func (o *Object) ModTime(ctx context.Context) time.Time {
	err := o.readMetaData(ctx)
	if err != nil {
		fs.Logf(o, "Failed to read metadata: %v", err)
		return time.Now()
	}
	return o.modTime
}

// setMetaData sets the metadata from info
func (o *Object) setMetaData(info *api.Item) (err error) {
	if info.IsFolder() {
		return fs.ErrorIsDir
	}
	o.hasMetaData = true
	o.size = info.Size
	o.modTime = info.GetLastModifiedDateTime()
	o.id = info.ID
	if info.File != nil {
		o.mimeType = info.File.MimeType
	}
	return nil
}

// readMetaData gets the metadata if it hasn't already been fetched
//
// it also sets the info
func (o *Object) readMetaData(ctx context.Context) (err error) {
	if o.hasMetaData {
		return nil
	}
	info, resp, err := o.fs.readMetaDataForPath(ctx, o.rootPath())
	if err != nil {
		if isNotFoundError(resp, err) {
			return fs.ErrorObjectNotFound
		}
		return err
	}
	return o.setMetaData(info)
}

// Open an object for read
func (o *Object) Open(ctx context.Context, options ...fs.OpenOption) (in io.ReadCloser, err error) {
	if err := o.fs.resolveDrive(ctx); err != nil {
		return nil, err
	}
	fs.FixRangeOption(options, o.size)
	opts := newOptsCallWithPath(o.rootPath(), "GET", "/content")
	opts.Options = options
	var resp *http.Response
	// No wall clock deadline on the download - the idle read
	// timeout on the connection catches stalled transfers.
	err = o.fs.pacer.Call(func() (bool, error) {
		resp, err = o.fs.srv.Call(ctx, &opts)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		if isNotFoundError(resp, err) {
			return nil, fs.ErrorObjectNotFound
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 && resp.Header.Get("Content-Range") == "" {
		// Overwrite size with actual size since size readings from the server are unreliable.
		o.size = resp.ContentLength
	}
	return resp.Body, err
}

// Update the object with the contents of the io.Reader, modTime and size
//
// The new object may have been created if an error is returned.
func (o *Object) Update(ctx context.Context, in io.Reader, src fs.ObjectInfo, options ...fs.OpenOption) (err error) {
	if err := o.fs.resolveDrive(ctx); err != nil {
		return err
	}
	size := src.Size()
	if size < 0 {
		return errors.New("unknown-sized upload not supported")
	}
	var info *api.Item
	if size <= uploadCutoff {
		info, err = o.uploadSinglepart(ctx, in, size, options...)
	} else {
		info, err = o.uploadMultipart(ctx, in, size, options...)
	}
	if err != nil {
		return err
	}
	return o.setMetaData(info)
}

// Remove an object
func (o *Object) Remove(ctx context.Context) error {
	if err := o.fs.resolveDrive(ctx); err != nil {
		return err
	}
	opts := newOptsCallWithPath(o.rootPath(), "DELETE", "")
	opts.NoResponse = true
	var resp *http.Response
	var err error
	tctx, cancel := o.fs.shortCtx(ctx)
	defer cancel()
	err = o.fs.pacer.Call(func() (bool, error) {
		resp, err = o.fs.srv.Call(tctx, &opts)
		return shouldRetry(tctx, resp, err)
	})
	if err != nil {
		if isNotFoundError(resp, err) {
			return fs.ErrorObjectNotFound
		}
		return err
	}
	return nil
}

// Rename gives the object a new leaf name within its directory
func (o *Object) Rename(ctx context.Context, newName string) error {
	if err := o.fs.resolveDrive(ctx); err != nil {
		return err
	}
	opts := newOptsCallWithPath(o.rootPath(), "PATCH", "")
	move := api.MoveItemRequest{
		Name: newName,
	}
	var resp *http.Response
	var info *api.Item
	var err error
	tctx, cancel := o.fs.shortCtx(ctx)
	defer cancel()
	err = o.fs.pacer.Call(func() (bool, error) {
		resp, err = o.fs.srv.CallJSON(tctx, &opts, &move, &info)
		return shouldRetry(tctx, resp, err)
	})
	if err != nil {
		if isNotFoundError(resp, err) {
			return fs.ErrorObjectNotFound
		}
		return err
	}
	dir, _ := dircache.SplitPath(o.remote)
	o.remote = path.Join(dir, newName)
	return o.setMetaData(info)
}

// MimeType of an Object if known, "" otherwise
func (o *Object) MimeType(ctx context.Context) string {
	return o.mimeType
}

// ID returns the ID of the Object if known, or "" if not
func (o *Object) ID() string {
	return o.id
}

// Check the interfaces are satisfied
var (
	_ fs.Fs      = (*Fs)(nil)
	_ fs.Abouter = (*Fs)(nil)
	_ fs.Tester  = (*Fs)(nil)
	_ fs.Object  = (*Object)(nil)
	_ fs.Renamer = (*Object)(nil)
)
