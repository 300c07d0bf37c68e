package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/flowcore/store"
	"github.com/BaSui01/flowcore/types"
)

// =============================================================================
// 🧠 memory 命令
// =============================================================================

const defaultChunkChars = 1000

func runMemory(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("memory: subcommand required (add, knowledge): %w", errUsage)
	}
	switch args[0] {
	case "add":
		return memoryAdd(args[1:], stdout)
	case "knowledge":
		return memoryKnowledge(args[1:], stdout)
	default:
		return fmt.Errorf("memory: unknown subcommand %q: %w", args[0], errUsage)
	}
}

// memoryAdd 向会话历史追加一条消息
func memoryAdd(args []string, stdout io.Writer) error {
	var cf commonFlags
	var subjectID, tenantID, role, content string
	fs := newFlagSet("memory add", &cf)
	fs.StringVar(&subjectID, "subject", "", "Memory subject (agent or session ID)")
	fs.StringVar(&tenantID, "tenant", "", "Owning tenant")
	fs.StringVar(&role, "role", string(types.RoleUser), "Message role: system, user or assistant")
	fs.StringVar(&content, "content", "", "Message text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("memory add", "subject", subjectID, "content", content); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx := withTenant(context.Background(), tenantID)
	if err := a.recorder.Store(ctx, subjectID, types.Role(role), content); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "stored")
	return nil
}

// memoryKnowledge 切分文本文件并写入知识库
func memoryKnowledge(args []string, stdout io.Writer) error {
	var cf commonFlags
	var subjectID, tenantID, file string
	var chunkChars int
	fs := newFlagSet("memory knowledge", &cf)
	fs.StringVar(&subjectID, "subject", "", "Memory subject (agent ID)")
	fs.StringVar(&tenantID, "tenant", "", "Owning tenant")
	fs.StringVar(&file, "file", "", "Text file to ingest")
	fs.IntVar(&chunkChars, "chunk-chars", defaultChunkChars, "Maximum characters per chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("memory knowledge", "subject", subjectID, "file", file); err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	texts := splitParagraphs(string(data), chunkChars)

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx := withTenant(context.Background(), tenantID)
	chunks := make([]store.Chunk, 0, len(texts))
	for i, text := range texts {
		emb, err := a.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		chunks = append(chunks, store.Chunk{
			SourceFile: filepath.Base(file),
			Index:      i,
			Text:       text,
			Embedding:  emb,
		})
	}
	if err := a.messages.AddChunks(ctx, subjectID, chunks); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "stored %d chunks\n", len(chunks))
	return nil
}

// splitParagraphs 按空行切分并合并相邻段落，单段超长时按字符硬切
func splitParagraphs(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultChunkChars
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for utf8.RuneCountInString(para) > maxChars {
			flush()
			r := []rune(para)
			out = append(out, string(r[:maxChars]))
			para = strings.TrimSpace(string(r[maxChars:]))
		}
		if para == "" {
			continue
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+utf8.RuneCountInString(para) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}
