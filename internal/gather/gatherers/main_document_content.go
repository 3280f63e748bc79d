// internal/gather/gatherers/main_document_content.go
package gatherers

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/gather"
)

// MainDocumentContent captures the response body of the main document
// request.
type MainDocumentContent struct {
	Base
}

func (MainDocumentContent) Name() string { return "main-document-content" }

func (MainDocumentContent) AfterPass(ctx context.Context, pctx *schemas.PassContext, load *schemas.LoadData) (any, error) {
	return fetchMainDocument(ctx, pctx, load)
}

// fetchMainDocument resolves the main document's network record and pulls its
// response body through the driver.
func fetchMainDocument(ctx context.Context, pctx *schemas.PassContext, load *schemas.LoadData) (string, error) {
	record := gather.FindMainRecord(load.NetworkRecords, pctx.URL)
	if record == nil {
		return "", fmt.Errorf("no document request observed for %s", pctx.URL)
	}
	content, err := pctx.Driver.GetRequestContent(ctx, record.RequestID)
	if err != nil {
		return "", fmt.Errorf("fetching document body for %s: %w", pctx.URL, err)
	}
	return content, nil
}
