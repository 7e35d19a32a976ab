//go:build windows

package converter

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	u "docx2pdf/internal/utils"
)

// wdFormatPDF is Word's SaveAs2 file format constant for PDF export.
const wdFormatPDF = 17

// wordBackend drives a local Word installation over COM. Each call runs on
// its own locked OS thread with a paired CoInitialize/CoUninitialize, which
// Word's apartment-threaded COM server requires. There is no timeout on
// this path: a hung Word instance blocks the calling request.
type wordBackend struct{}

func newWordBackend() Backend {
	// Probe once: if the Word COM class is not registered, fall through to
	// LibreOffice.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitialize(0); err != nil {
		return nil
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Word.Application")
	if err != nil {
		return nil
	}
	unknown.Release()
	return &wordBackend{}
}

// Name implements Backend.
func (w *wordBackend) Name() string { return "word" }

// Convert implements Backend.
func (w *wordBackend) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitialize(0); err != nil {
		return fmt.Errorf("%w: CoInitialize: %v", ErrEngineFailed, err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Word.Application")
	if err != nil {
		return fmt.Errorf("%w: create Word.Application: %v", ErrEngineFailed, err)
	}
	word, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		unknown.Release()
		return fmt.Errorf("%w: query IDispatch: %v", ErrEngineFailed, err)
	}
	defer word.Release()
	defer oleutil.MustCallMethod(word, "Quit")

	oleutil.PutProperty(word, "Visible", false)

	docs := oleutil.MustGetProperty(word, "Documents").ToIDispatch()
	defer docs.Release()

	docv, err := oleutil.CallMethod(docs, "Open", inputPath, false, true)
	if err != nil {
		return fmt.Errorf("%w: open document: %v", ErrEngineFailed, err)
	}
	doc := docv.ToIDispatch()
	defer doc.Release()
	defer oleutil.MustCallMethod(doc, "Close", false)

	if _, err := oleutil.CallMethod(doc, "SaveAs2", outputPath, wdFormatPDF); err != nil {
		return fmt.Errorf("%w: export to PDF: %v", ErrEngineFailed, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrNoOutput, outputPath)
	}

	u.Info("Conversion finished", "backend", w.Name(), "output", outputPath, "bytes", info.Size())
	return nil
}
