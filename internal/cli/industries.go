package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/search"
)

// NewIndustriesCommand creates the industries command.
func NewIndustriesCommand(rootOpts *RootOptions) *cobra.Command {
	var classification string
	cmd := &cobra.Command{
		Use:   "industries [code...]",
		Short: "Show the industry classification tree",
		Long: `Print industry nodes and their descendants. Without codes the whole
classification is printed.

Example:
  filingindex industries 28`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()

			codes := make([]int, 0, len(args))
			for _, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return a.out.Fail("invalid industry code",
						model.WrapError(model.ErrCodeBadSearchParameter, arg+" is not an industry code", err))
				}
				codes = append(codes, n)
			}

			tree, err := search.LoadIndustryTree(cmd.Context(), a.st, classification)
			if err != nil {
				return a.out.Fail("failed to load industries", err)
			}
			return a.out.Success(industryList(tree.Descendants(codes)))
		},
	}
	cmd.Flags().StringVar(&classification, "classification", "SEC", "industry classification")
	return cmd
}

type industryList []model.Industry

func (l industryList) WriteText(w io.Writer) error {
	for _, ind := range l {
		indent := strings.Repeat("  ", max(ind.Depth-1, 0))
		if _, err := fmt.Fprintf(w, "%s%d %s\n", indent, ind.Code, ind.Description); err != nil {
			return err
		}
	}
	return nil
}
