// Package api provides types used by the Microsoft Graph drive API.
package api

import (
	"fmt"
	"time"
)

const (
	timeFormat = `"` + time.RFC3339 + `"`
)

// Error is returned from the Graph API when things go wrong
type Error struct {
	ErrorInfo struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		InnerError struct {
			Code string `json:"code"`
		} `json:"innererror"`
	} `json:"error"`
}

// Error returns a string for the error and satisfies the error interface
func (e *Error) Error() string {
	out := e.ErrorInfo.Code
	if e.ErrorInfo.InnerError.Code != "" {
		out += ": " + e.ErrorInfo.InnerError.Code
	}
	out += ": " + e.ErrorInfo.Message
	return out
}

// Check Error satisfies the error interface
var _ error = (*Error)(nil)

// Timestamp represents an RFC3339 date as used in the JSON
type Timestamp time.Time

// MarshalJSON turns a Timestamp into JSON (in UTC)
func (t *Timestamp) MarshalJSON() (out []byte, err error) {
	timeString := (*time.Time)(t).UTC().Format(timeFormat)
	return []byte(timeString), nil
}

// UnmarshalJSON turns JSON into a Timestamp
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	newT, err := time.Parse(timeFormat, string(data))
	if err != nil {
		return err
	}
	*t = Timestamp(newT)
	return nil
}

// FolderFacet groups folder-related data on an item into a single structure
type FolderFacet struct {
	ChildCount int64 `json:"childCount"` // Number of children contained immediately within this container.
}

// FileFacet groups file-related data on an item into a single structure
type FileFacet struct {
	MimeType string `json:"mimeType"` // The MIME type for the file.
}

// DeletedFacet indicates that the item on OneDrive has been
// deleted. In this version of the API, the presence (non-null) of the
// facet value indicates that the file was deleted.
type DeletedFacet struct{}

// FileSystemInfoFacet contains properties that are reported by the
// device's local file system for the local version of an item.
type FileSystemInfoFacet struct {
	CreatedDateTime      Timestamp `json:"createdDateTime,omitempty"`      // The UTC date and time the file was created on a client.
	LastModifiedDateTime Timestamp `json:"lastModifiedDateTime,omitempty"` // The UTC date and time the file was last modified on a client.
}

// Item represents metadata for an item in a drive
type Item struct {
	ID                   string               `json:"id"`   // The unique identifier of the item within the Drive.
	Name                 string               `json:"name"` // The name of the item (filename and extension).
	Size                 int64                `json:"size"` // Size of the item in bytes.
	Folder               *FolderFacet         `json:"folder"`
	File                 *FileFacet           `json:"file"`
	Deleted              *DeletedFacet        `json:"deleted"`
	FileSystemInfo       *FileSystemInfoFacet `json:"fileSystemInfo"`
	CreatedDateTime      Timestamp            `json:"createdDateTime"`      // date and time of item creation.
	LastModifiedDateTime Timestamp            `json:"lastModifiedDateTime"` // date and time the item was last modified.
}

// IsFolder returns true if the item is a folder
func (i *Item) IsFolder() bool {
	return i.Folder != nil
}

// GetLastModifiedDateTime returns the item's modification time,
// preferring the client-reported file system time when present.
func (i *Item) GetLastModifiedDateTime() time.Time {
	if i.FileSystemInfo != nil {
		if t := time.Time(i.FileSystemInfo.LastModifiedDateTime); !t.IsZero() {
			return t
		}
	}
	return time.Time(i.LastModifiedDateTime)
}

// Quota groups storage space quota-related information on a drive
type Quota struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Deleted   int64 `json:"deleted"`
}

// Drive is the top level object representing a user's OneDrive or a
// document library in SharePoint
type Drive struct {
	ID        string `json:"id"`
	DriveType string `json:"driveType"` // personal | business | documentLibrary
	Quota     Quota  `json:"quota"`
}

// Site represents a SharePoint site
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// ListChildrenResponse is the response to the list children api call
type ListChildrenResponse struct {
	Value    []Item `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// CreateItemRequest is the request to make a folder
type CreateItemRequest struct {
	Name             string      `json:"name"` // Name of the folder to be created.
	Folder           FolderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior,omitempty"` // fail, replace, or rename
}

// MoveItemRequest is the request to rename an item.  Only the fields
// to change need be supplied.
type MoveItemRequest struct {
	Name           string               `json:"name,omitempty"` // New name of the item
	FileSystemInfo *FileSystemInfoFacet `json:"fileSystemInfo,omitempty"`
}

// CreateUploadRequest is the request to create an upload session.  It
// is sent as the literal JSON body `{}` - the server accepts an empty
// object and some front ends reject a missing body.
type CreateUploadRequest struct{}

// UploadSession is created to allow your app to upload files larger
// than the simple upload limit.  The final fragment PUT returns the
// completed Item instead; its JSON still parses into this type with
// the unknown fields ignored.
type UploadSession struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime Timestamp `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges"`
}

// String returns the upload session in string form for debugging
func (s *UploadSession) String() string {
	return fmt.Sprintf("upload session expiring %v", time.Time(s.ExpirationDateTime))
}
