package cpp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertConfigs(t *testing.T, text string, want []string) {
	t.Helper()
	got := GetConfigurations(text)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetConfigurations() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetConfigurations_NoDirectives(t *testing.T) {
	assertConfigs(t, "int x;\n", []string{""})
}

func TestGetConfigurations_SingleIfdef(t *testing.T) {
	text := `#ifdef FOO
int a;
#endif
`
	assertConfigs(t, text, []string{"", "FOO"})
}

func TestGetConfigurations_IfdefElse(t *testing.T) {
	text := `#ifdef FOO
int a;
#else
int b;
#endif
`
	assertConfigs(t, text, []string{"", "FOO"})
}

func TestGetConfigurations_Ifndef(t *testing.T) {
	text := `#ifndef FOO
int a;
#endif
`
	// #ifndef FOO's taken branch is the *default* path (FOO absent), so it
	// contributes no new token; only the untaken #else-less branch would.
	assertConfigs(t, text, []string{""})
}

func TestGetConfigurations_IfndefElse(t *testing.T) {
	text := `#ifndef FOO
int a;
#else
int b;
#endif
`
	assertConfigs(t, text, []string{"", "FOO"})
}

func TestGetConfigurations_TwoIndependentIfdefs(t *testing.T) {
	text := `#ifdef FOO
int a;
#endif
#ifdef BAR
int b;
#endif
`
	assertConfigs(t, text, []string{"", "BAR", "FOO"})
}

func TestGetConfigurations_NestedIfdef(t *testing.T) {
	text := `#ifdef FOO
#ifdef BAR
int ab;
#endif
#endif
`
	assertConfigs(t, text, []string{"", "BAR;FOO", "FOO"})
}

func TestGetConfigurations_IncludeGuardIsNotABranchPoint(t *testing.T) {
	text := `#file "header.h"
#ifndef HEADER_H
#define HEADER_H
int body;
#endif
#endfile
`
	assertConfigs(t, text, []string{""})
}

func TestGetConfigurations_BranchInsideGuardedHeaderStillCounted(t *testing.T) {
	text := `#file "header.h"
#ifndef HEADER_H
#define HEADER_H
#ifdef FEATURE
int feature;
#endif
#endif
#endfile
`
	assertConfigs(t, text, []string{"", "FEATURE"})
}

func TestGetConfigurations_UnconditionallyDefinedNameIsStripped(t *testing.T) {
	text := `#define FOO 1
#ifdef FOO
int a;
#endif
#ifdef BAR
int b;
#endif
`
	assertConfigs(t, text, []string{"", "BAR"})
}

func TestGetConfigurations_AndChainOfDefinedContributesJointToken(t *testing.T) {
	text := `#if defined(A) && defined(B)
int ab;
#endif
`
	assertConfigs(t, text, []string{"", "A;B"})
}

func TestGetConfigurations_AndChainOfThreeContributesJointToken(t *testing.T) {
	text := `#if defined(A) && defined(B) && defined(C)
int abc;
#endif
`
	assertConfigs(t, text, []string{"", "A;B;C"})
}

func TestGetConfigurations_DefineInsideIfDoesNotStrip(t *testing.T) {
	text := `#ifdef COND
#define FOO 1
#endif
#ifdef FOO
int a;
#endif
`
	assertConfigs(t, text, []string{"", "COND", "FOO"})
}

func TestClassifyDirective(t *testing.T) {
	cases := map[string]directiveKind{
		"if FOO":     dirIf,
		"ifdef FOO":  dirIfdef,
		"ifndef FOO": dirIfndef,
		"elif FOO":   dirElif,
		"else":       dirElse,
		"endif":      dirEndif,
		"file \"x\"": dirFile,
		"endfile":    dirEndfile,
		"define FOO": dirDefine,
		"undef FOO":  dirOther,
	}
	for rest, want := range cases {
		kind, _ := classifyDirective(rest)
		if kind != want {
			t.Errorf("classifyDirective(%q) = %v, want %v", rest, kind, want)
		}
	}
}
