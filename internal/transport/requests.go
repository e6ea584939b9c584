package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// Params converts a tagged struct (go-querystring `url:"..."` tags) into
// legacy API parameters. Repeated values are joined with "|".
func Params(p any) (url.Values, error) {
	values, err := query.Values(p)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	out := url.Values{}
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		out.Set(k, strings.Join(vs, "|"))
	}
	if out.Get("format") == "" {
		out.Set("format", "json")
	}
	return out, nil
}

// GetRequest builds a GET with query parameters.
func GetRequest(rawURL string, q url.Values) Request {
	return Request{Method: http.MethodGet, URL: rawURL, Query: q}
}

// FormRequest builds a form-encoded POST.
func FormRequest(rawURL string, form url.Values) Request {
	return Request{
		Method:      http.MethodPost,
		URL:         rawURL,
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	}
}

// JSONRequest builds a request with a JSON-encoded body.
func JSONRequest(method, rawURL string, body any) (Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("encode request body: %w", err)
	}
	return Request{
		Method:      method,
		URL:         rawURL,
		Body:        data,
		ContentType: "application/json",
	}, nil
}

// File is a multipart file part.
type File struct {
	Field    string
	Filename string
	Reader   io.Reader
}

// MultipartRequest builds a multipart/form-data POST. The body is buffered so
// retries can replay it.
func MultipartRequest(rawURL string, fields url.Values, files ...File) (Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		if len(vs) == 0 {
			continue
		}
		if err := w.WriteField(k, vs[0]); err != nil {
			return Request{}, err
		}
	}
	for _, f := range files {
		filename := f.Filename
		if filename == "" {
			filename = f.Field
		}
		fw, err := w.CreateFormFile(f.Field, filename)
		if err != nil {
			_ = w.Close()
			return Request{}, err
		}
		if _, err := io.Copy(fw, f.Reader); err != nil {
			_ = w.Close()
			return Request{}, fmt.Errorf("read %s: %w", filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return Request{}, err
	}
	return Request{
		Method:      http.MethodPost,
		URL:         rawURL,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}
