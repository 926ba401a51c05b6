package policy

// DefaultAllowList returns the built-in set of permitted top-level module
// names: the Python standard library plus a curated set of data and document
// processing libraries baked into the sandbox image.
func DefaultAllowList() map[string]bool {
	allowed := map[string]bool{}
	for _, name := range []string{
		// Standard library modules
		"sys", "os", "math", "random", "datetime", "time", "json", "csv", "io", "collections",
		"itertools", "functools", "operator", "re", "string", "textwrap", "unicodedata",
		"struct", "codecs", "base64", "binascii", "hashlib", "hmac", "secrets",
		"pathlib", "glob", "fnmatch", "tempfile", "shutil", "pickle", "shelve",
		"sqlite3", "gzip", "bz2", "lzma", "zipfile", "tarfile",
		"configparser", "argparse", "logging", "warnings", "traceback",
		"decimal", "fractions", "statistics", "enum", "typing", "copy", "pprint",
		"heapq", "bisect", "array", "queue", "threading", "multiprocessing",
		"subprocess", "socket", "ssl", "email", "urllib", "http", "html",
		"xml", "webbrowser", "uuid", "contextlib", "abc", "dataclasses",
		// Third-party allowed libraries
		"numpy", "np", "pandas", "pd", "matplotlib", "plt", "scipy",
		"sklearn", "scikit-learn", "pdfplumber", "fitz", "pymupdf",
		"docx", "python-docx", "pptx", "python-pptx", "openpyxl",
		"chardet", "magic", "python-magic",
	} {
		allowed[name] = true
	}
	return allowed
}

// allowedSummary is appended to every rejection message so callers can see
// what the sandbox does support.
const allowedSummary = "Allowed libraries:\n" +
	"- Standard Python library modules\n" +
	"- numpy, pandas, matplotlib, scipy, scikit-learn\n" +
	"- pdfplumber, pymupdf, python-docx, python-pptx\n" +
	"- openpyxl, chardet, python-magic"
